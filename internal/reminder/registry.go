package reminder

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"intentbot/internal/eventbus"
	logx "intentbot/pkg/logx"
)

// Catalog is a Backend that can also enumerate known conversations.
type Catalog interface {
	Backend
	Keys(ctx context.Context) ([]string, error)
}

type RegistryConfig struct {
	Backend Catalog
	// Notifier builds the outward sink of one conversation.
	Notifier func(chatID int64) Notifier
	Bus      eventbus.Bus
	Log      logx.Logger
	IDRange  int
	Now      func() time.Time
}

// Registry maps conversations to their stores. Stores are opened on first
// use and live until Close.
type Registry struct {
	cfg RegistryConfig
	log logx.Logger

	mu     sync.RWMutex
	stores map[int64]*Store
	closed bool

	sf singleflight.Group
}

func NewRegistry(cfg RegistryConfig) *Registry {
	log := cfg.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{cfg: cfg, log: log, stores: map[int64]*Store{}}
}

// Get returns the store of chatID, opening (and loading) it on first use.
// Concurrent first calls for the same chat share one Open.
func (r *Registry) Get(ctx context.Context, chatID int64) (*Store, error) {
	r.mu.RLock()
	s, ok := r.stores[chatID]
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	if ok {
		return s, nil
	}

	v, err, _ := r.sf.Do(strconv.FormatInt(chatID, 10), func() (any, error) {
		r.mu.RLock()
		s, ok := r.stores[chatID]
		r.mu.RUnlock()
		if ok {
			return s, nil
		}

		cfg := Config{
			ChatID:  chatID,
			Backend: r.cfg.Backend,
			Bus:     r.cfg.Bus,
			Log:     r.log,
			IDRange: r.cfg.IDRange,
			Now:     r.cfg.Now,
		}
		if r.cfg.Notifier != nil {
			cfg.Notifier = r.cfg.Notifier(chatID)
		}
		s, _, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			s.Close()
			return nil, ErrClosed
		}
		r.stores[chatID] = s
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Restore opens every conversation the backend knows about, so timers are
// re-armed at startup instead of on the next command in each chat.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	keys, err := r.cfg.Backend.Keys(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		chatID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			r.log.Warn("ignoring unknown store key", logx.String("key", k))
			continue
		}
		if _, err := r.Get(ctx, chatID); err != nil {
			r.log.Warn("restore failed", logx.Int64("chat_id", chatID), logx.Err(err))
			continue
		}
		n++
	}
	return n, nil
}

// Each calls fn for every open store, ordered by chat id.
func (r *Registry) Each(fn func(s *Store)) {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	stores := make([]*Store, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		stores = append(stores, r.stores[id])
	}
	r.mu.RUnlock()

	for _, s := range stores {
		fn(s)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Close stops every store's timers. Further Get calls fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	stores := r.stores
	r.stores = map[int64]*Store{}
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}
