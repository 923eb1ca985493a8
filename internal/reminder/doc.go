// Package reminder is the reminder lifecycle engine: the Item data model, the
// per-conversation Store that keeps items durable, and the timer registry that
// turns a stored item into exactly one future notification.
//
// A Store serializes all of its work behind one mutex. Timer callbacks only
// carry an item id and re-enter the store through that mutex, so a fire that
// races a user cancel either wins (and the cancel finds nothing) or finds the
// item already gone and does nothing.
package reminder
