package reminder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"intentbot/internal/eventbus"
	"intentbot/internal/storage"
	logx "intentbot/pkg/logx"
)

// Backend is the persistence the store needs. storage.Store satisfies it.
type Backend interface {
	LoadLines(ctx context.Context, key string) ([][]byte, error)
	ReplaceLines(ctx context.Context, key string, lines [][]byte) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Event types published on the bus.
const (
	EventAdded     = "reminder.added"
	EventFired     = "reminder.fired"
	EventCancelled = "reminder.cancelled"
)

// Event is the payload of reminder bus events.
type Event struct {
	ChatID int64     `json:"chat_id"`
	ID     ID        `json:"id"`
	Due    time.Time `json:"due"`
}

// removal causes; also used as audit actions.
const (
	causeCancelled = "cancelled"
	causeFired     = "fired"
	causeExpired   = "expired"
)

// persistTimeout bounds snapshot writes started from timer callbacks, which
// have no caller context.
const persistTimeout = 10 * time.Second

type Config struct {
	ChatID   int64
	Backend  Backend
	Notifier Notifier
	Bus      eventbus.Bus
	Log      logx.Logger

	// IDRange bounds ids to [1, IDRange). Default 1000.
	IDRange int
	// Seed for id draws; 0 seeds from the clock.
	Seed int64
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Store is the authoritative reminder collection of one conversation.
//
// Every mutation (map change, snapshot rewrite, timer change, notification)
// runs under mu, and so does every timer fire, so the backing snapshot always
// matches the map once a call returns.
type Store struct {
	chatID  int64
	key     string
	backend Backend
	notify  Notifier
	bus     eventbus.Bus
	log     logx.Logger
	now     func() time.Time

	mu     sync.Mutex
	items  map[ID]Item
	sched  *scheduler
	ids    *idAllocator
	closed bool
}

// LoadStats summarizes a Load.
type LoadStats struct {
	Loaded  int // kept in the store
	Expired int // due while the process was down, resolved immediately
	Skipped int // malformed or duplicate lines
}

// Open creates the store for cfg.ChatID and loads its persisted items.
func Open(ctx context.Context, cfg Config) (*Store, LoadStats, error) {
	if cfg.Backend == nil {
		return nil, LoadStats{}, errors.New("reminder: backend is required")
	}
	s := &Store{
		chatID:  cfg.ChatID,
		key:     strconv.FormatInt(cfg.ChatID, 10),
		backend: cfg.Backend,
		notify:  cfg.Notifier,
		bus:     cfg.Bus,
		log:     cfg.Log,
		now:     cfg.Now,
		items:   map[ID]Item{},
		ids:     newIDAllocator(cfg.IDRange, cfg.Seed),
	}
	if s.notify == nil {
		s.notify = nopNotifier{}
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.Int64("chat_id", cfg.ChatID))
	if s.now == nil {
		s.now = time.Now
	}
	s.sched = newScheduler(s.now, s.fire)

	st, err := s.load(ctx)
	if err != nil {
		return nil, st, err
	}
	return s, st, nil
}

func (s *Store) ChatID() int64 { return s.chatID }

// load reads the backend once and admits every decodable item the way a
// silent AddItem would: future items are armed and items already due are
// resolved. The arm result decides expiry, so an item that comes due while
// the snapshot is read is still resolved. The snapshot is rewritten once,
// and only if something was dropped.
func (s *Store) load(ctx context.Context) (LoadStats, error) {
	var st LoadStats
	lines, err := s.backend.LoadLines(ctx, s.key)
	if err != nil {
		return st, fmt.Errorf("load chat %s: %w", s.key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, line := range lines {
		it, err := DecodeRecord(line)
		if err != nil {
			var me *MalformedRecordError
			if errors.As(err, &me) {
				me.Line = i + 1
			}
			st.Skipped++
			s.log.Warn("skipping stored record", logx.Err(err))
			continue
		}
		if _, dup := s.items[it.id]; dup {
			st.Skipped++
			s.log.Warn("skipping duplicate stored record", logx.Int64("id", int64(it.id)), logx.Int("line", i+1))
			continue
		}
		s.items[it.id] = it
	}

	var expired []Item
	for _, it := range s.sortedLocked() {
		if s.sched.arm(it) == armDue {
			delete(s.items, it.id)
			expired = append(expired, it)
		}
	}
	st.Loaded = len(s.items)
	st.Expired = len(expired)

	if st.Expired > 0 || st.Skipped > 0 {
		if err := s.persistLocked(ctx); err != nil {
			// Memory stays authoritative; the next successful write fixes the file.
			s.log.Warn("rewrite after load failed", logx.Err(err))
		}
	}
	for _, it := range expired {
		s.resolvedLocked(ctx, it, causeExpired)
	}

	s.log.Info("store loaded",
		logx.Int("loaded", st.Loaded),
		logx.Int("expired", st.Expired),
		logx.Int("skipped", st.Skipped),
		logx.Int("armed", s.sched.pending()),
	)
	return st, nil
}

// Create draws a fresh id and adds a new item through AddItem.
func (s *Store) Create(ctx context.Context, message string, due time.Time, schedulable bool) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Item{}, ErrClosed
	}
	id, err := s.ids.next(func(id ID) bool {
		_, ok := s.items[id]
		return ok
	})
	if err != nil {
		return Item{}, err
	}
	it := New(id, message, due, schedulable)
	if err := s.addLocked(ctx, it, false); err != nil {
		return Item{}, err
	}
	return it, nil
}

// AddItem inserts it, persists the snapshot, announces it unless silent and
// arms its timer. An item already due is resolved immediately.
//
// When the snapshot write fails the insert is reverted and the error returned.
func (s *Store) AddItem(ctx context.Context, it Item, silent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.addLocked(ctx, it, silent)
}

func (s *Store) addLocked(ctx context.Context, it Item, silent bool) error {
	if it.IsZero() {
		return errors.New("reminder: item has no id")
	}
	if _, ok := s.items[it.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateIdentity, it.id)
	}

	s.items[it.id] = it
	if err := s.persistLocked(ctx); err != nil {
		delete(s.items, it.id)
		return err
	}

	s.audit(ctx, it, "added")
	s.publish(EventAdded, it)
	if !silent {
		s.notify.SendStatus(it, LabelAdded)
	}

	if s.sched.arm(it) == armDue {
		delete(s.items, it.id)
		if err := s.persistLocked(ctx); err != nil {
			s.log.Warn("persist after immediate resolve failed", logx.Int64("id", int64(it.id)), logx.Err(err))
		}
		s.resolvedLocked(ctx, it, causeExpired)
	}
	return nil
}

// DeleteItem removes it, persists, cancels its timer and emits the done
// status. The done status is sent even when it is no longer in the store;
// only a stray timer is cancelled then. A failed write restores the item and
// returns the error.
func (s *Store) DeleteItem(ctx context.Context, it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	ok, err := s.deleteLocked(ctx, it.id)
	if err == nil && !ok && !it.IsZero() {
		s.notify.SendStatus(it, LabelDone)
	}
	return err
}

// DeleteByID is DeleteItem by id. It reports whether the id was present; an
// absent id is silent.
func (s *Store) DeleteByID(ctx context.Context, id ID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	return s.deleteLocked(ctx, id)
}

func (s *Store) deleteLocked(ctx context.Context, id ID) (bool, error) {
	it, ok := s.items[id]
	if !ok {
		s.sched.cancel(id)
		return false, nil
	}

	delete(s.items, id)
	if err := s.persistLocked(ctx); err != nil {
		s.items[id] = it
		return false, err
	}
	s.sched.cancel(id)
	s.resolvedLocked(ctx, it, causeCancelled)
	return true, nil
}

// fire runs on the timer goroutine. It only carries the id: the item is
// looked up again under the lock, so a concurrent delete wins cleanly.
func (s *Store) fire(id ID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.sched.claim(id, gen) {
		return
	}
	it, ok := s.items[id]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	// The reminder is delivered even if the write fails; the stale line is
	// dropped by the next successful write.
	delete(s.items, id)
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error("persist after fire failed", logx.Int64("id", int64(id)), logx.Err(err))
	}
	s.resolvedLocked(ctx, it, causeFired)
}

// resolvedLocked emits everything that follows an item leaving the store.
func (s *Store) resolvedLocked(ctx context.Context, it Item, cause string) {
	s.notify.SendStatus(it, LabelDone)
	s.audit(ctx, it, cause)
	if cause == causeCancelled {
		s.publish(EventCancelled, it)
	} else {
		s.publish(EventFired, it)
	}
	s.log.Debug("reminder resolved", logx.Int64("id", int64(it.id)), logx.String("cause", cause))
}

// ListAll sends every item sorted by due time, or a single "nothing pending"
// notice for an empty store.
func (s *Store) ListAll(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.sortedLocked()
	if len(items) == 0 {
		s.notify.SendNotice(NoticeEmpty)
		return
	}
	for _, it := range items {
		s.notify.SendStatus(it, LabelListed)
	}
}

// Items returns the current items sorted by due time.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Get returns the item with the given id.
func (s *Store) Get(id ID) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	return it, ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Pending returns the number of armed timers.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.pending()
}

// Armed reports whether id has a pending timer.
func (s *Store) Armed(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.has(id)
}

// Close stops all timers. Persisted state is untouched, so a later Open
// re-arms everything.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sched.stopAll()
}

func (s *Store) sortedLocked() []Item {
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].due.Equal(out[j].due) {
			return out[i].due.Before(out[j].due)
		}
		return out[i].id < out[j].id
	})
	return out
}

func (s *Store) persistLocked(ctx context.Context) error {
	items := s.sortedLocked()
	lines := make([][]byte, 0, len(items))
	for _, it := range items {
		lines = append(lines, it.Record())
	}
	if err := s.backend.ReplaceLines(ctx, s.key, lines); err != nil {
		return fmt.Errorf("persist snapshot: %w", err)
	}
	return nil
}

func (s *Store) audit(ctx context.Context, it Item, action string) {
	e := storage.AuditEntry{
		At:         s.now(),
		ChatID:     s.chatID,
		ReminderID: int64(it.id),
		Action:     action,
		Due:        it.due,
		Message:    it.message,
	}
	if aerr := s.backend.AppendAudit(ctx, e); aerr != nil {
		s.log.Debug("audit append failed", logx.String("action", action), logx.Err(aerr))
	}
}

func (s *Store) publish(typ string, it Item) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type: typ,
		Time: s.now(),
		Data: Event{ChatID: s.chatID, ID: it.id, Due: it.due},
	})
}
