package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"intentbot/internal/storage"
)

type memBackend struct {
	mu         sync.Mutex
	data       map[string][][]byte
	audit      []storage.AuditEntry
	writes     int
	failWrites bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: map[string][][]byte{}}
}

func (b *memBackend) LoadLines(ctx context.Context, key string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.data[key]...), nil
}

func (b *memBackend) ReplaceLines(ctx context.Context, key string, lines [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failWrites {
		return errors.New("disk full")
	}
	cp := make([][]byte, len(lines))
	for i, l := range lines {
		cp[i] = append([]byte(nil), l...)
	}
	b.data[key] = cp
	b.writes++
	return nil
}

func (b *memBackend) Keys(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (b *memBackend) AppendAudit(ctx context.Context, e storage.AuditEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audit = append(b.audit, e)
	return nil
}

func (b *memBackend) lines(key string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data[key]
}

func (b *memBackend) setFail(v bool) {
	b.mu.Lock()
	b.failWrites = v
	b.mu.Unlock()
}

type sent struct {
	label  string // empty for notices
	id     ID
	notice string
}

type recNotifier struct {
	mu  sync.Mutex
	out []sent
	ch  chan sent
}

func newRecNotifier() *recNotifier {
	return &recNotifier{ch: make(chan sent, 1024)}
}

func (n *recNotifier) SendStatus(it Item, label string) {
	s := sent{label: label, id: it.ID()}
	n.mu.Lock()
	n.out = append(n.out, s)
	n.mu.Unlock()
	select {
	case n.ch <- s:
	default:
	}
}

func (n *recNotifier) SendNotice(text string) {
	s := sent{notice: text}
	n.mu.Lock()
	n.out = append(n.out, s)
	n.mu.Unlock()
	select {
	case n.ch <- s:
	default:
	}
}

func (n *recNotifier) all() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.out...)
}

func (n *recNotifier) count(label string, id ID) int {
	c := 0
	for _, s := range n.all() {
		if s.label == label && s.id == id {
			c++
		}
	}
	return c
}

// wait blocks until a status with label for id arrives.
func (n *recNotifier) wait(t *testing.T, label string, id ID, d time.Duration) {
	t.Helper()
	deadline := time.After(d)
	for {
		select {
		case s := <-n.ch:
			if s.label == label && s.id == id {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q on id %d; got %+v", label, id, n.all())
		}
	}
}

// testBase is the fixed clock of test stores. It sits 100ms before a whole
// second, so an item due at testBase+100ms fires 100ms after arming.
var testBase = time.Unix(1_800_000_000, 0).Add(900 * time.Millisecond)

func testNow() time.Time { return testBase }

func openTestStore(t *testing.T, b *memBackend, n Notifier) *Store {
	t.Helper()
	s, _, err := Open(context.Background(), Config{ChatID: 42, Backend: b, Notifier: n, Seed: 1, Now: testNow})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}
