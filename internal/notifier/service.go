package notifier

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"intentbot/internal/eventbus"
	rtsup "intentbot/internal/runtime/supervisor"
	kit "intentbot/internal/transport"
	logx "intentbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is safe for concurrent use.
type Service struct {
	log    logx.Logger
	sender kit.Sender
	bus    eventbus.Bus

	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	queues    []chan Notification
	accepting bool
	sup       *rtsup.Supervisor
	inflight  sync.WaitGroup

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, dedup: map[string]time.Time{}}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate limit, retry, dedup and history settings live. Worker and
// queue sizes take effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	cfg.RetryMax = max(cfg.RetryMax, 0)
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	cfg.DedupWindow = max(cfg.DedupWindow, 0)
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	s.cfg = cfg
	// Burst equals the per-second rate so short spikes are not delayed.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the workers. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queues != nil {
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.queues = make([]chan Notification, s.cfg.Workers)
	for i := range s.queues {
		q := make(chan Notification, s.cfg.QueueSize)
		s.queues[i] = q
		s.sup.GoRestart("notify.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case n, ok := <-q:
					if !ok {
						return nil
					}
					s.deliver(c, n)
				}
			}
		})
	}
	s.accepting = true
}

// Stop refuses new messages and drains the queues until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.queues == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	queues, sup := s.queues, s.sup
	s.queues, s.sup = nil, nil
	s.mu.Unlock()

	s.inflight.Wait()
	for _, q := range queues {
		close(q)
	}
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		s.log.Warn("notifier stop: queue not drained", logx.Err(err))
	}
}

// Notify queues n. It never blocks: a full queue returns ErrQueueFull.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queues[shard(n.Target.ChatID, len(s.queues))]
	window := s.cfg.DedupWindow
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if window > 0 && !s.dedupAllow(n, window) {
		return nil
	}
	select {
	case q <- n:
		return nil
	default:
		s.publish(EventDropped, n, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

func shard(chatID int64, n int) int {
	h := fnv.New32a()
	h.Write([]byte(strconv.FormatInt(chatID, 10)))
	return int(h.Sum32() % uint32(n))
}

func (s *Service) deliver(ctx context.Context, n Notification) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if werr := lim.Wait(ctx); werr != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err = s.sender.SendText(cctx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.appendHistory(n, cfg.HistorySize)
			s.publish(EventSent, n, attempt, nil)
			return
		}
		s.log.Debug("notify send failed", logx.Int64("chat_id", n.Target.ChatID), logx.Int("attempt", attempt), logx.Err(err))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.log.Warn("notify dropped after failures", logx.Int64("chat_id", n.Target.ChatID), logx.Int("attempts", attempts), logx.Err(err))
	s.publish(EventFailed, n, attempts, err)
}

// retryDelay is base*2^(attempt-1), capped and jittered by ±30%.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt && d < cfg.RetryMaxDelay; i++ {
		d *= 2
	}
	d = time.Duration(float64(min(d, cfg.RetryMaxDelay)) * (0.7 + rand.Float64()*0.6))
	return min(d, cfg.RetryMaxDelay)
}

func (s *Service) dedupAllow(n Notification, window time.Duration) bool {
	key := strconv.FormatInt(n.Target.ChatID, 10) + ":" + strconv.Itoa(n.Target.ThreadID) + "|" + n.Text
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

// History returns the most recent delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(n Notification, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChatID: n.Target.ChatID, Text: n.Text})
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func (s *Service) publish(typ string, n Notification, attempts int, err error) {
	if s.bus == nil {
		return
	}
	now := time.Now()
	e := Event{ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Attempts: attempts, At: now}
	if err != nil {
		e.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: e})
}
