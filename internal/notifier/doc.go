// Package notifier delivers outgoing chat messages asynchronously.
//
// Messages go through a bounded queue into a worker pool. The worker is
// chosen by hashing the chat id, so messages to one chat are sent in the
// order they were queued. Sends share a token-bucket rate limit and may be
// retried with jittered exponential backoff.
//
// Delivery results are published on the event bus (notify.sent,
// notify.failed, notify.dropped) and the last messages are kept in a small
// in-memory history.
package notifier
