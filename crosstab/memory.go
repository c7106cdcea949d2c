package crosstab

import (
	"sync"

	"github.com/google/uuid"
)

// MemoryBus is an in-process shared store. Each Tab is an independent handle
// on the same data.
type MemoryBus struct {
	mu     sync.RWMutex
	values map[string]string
	subs   map[int]subscription
	nextID int
}

type subscription struct {
	tabID string
	fn    func(Change)
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		values: make(map[string]string),
		subs:   make(map[int]subscription),
	}
}

// Tab returns a new handle on the bus.
func (b *MemoryBus) Tab() *MemoryTab {
	return &MemoryTab{bus: b, id: uuid.New().String()}
}

// MemoryTab is a Store handle on a MemoryBus.
type MemoryTab struct {
	bus *MemoryBus
	id  string
}

var _ Store = (*MemoryTab)(nil)

// ID identifies the tab on its bus.
func (t *MemoryTab) ID() string {
	return t.id
}

func (t *MemoryTab) Get(key string) (string, bool, error) {
	t.bus.mu.RLock()
	defer t.bus.mu.RUnlock()
	v, ok := t.bus.values[key]
	return v, ok, nil
}

func (t *MemoryTab) Set(key, value string) error {
	t.bus.mu.Lock()
	old := t.bus.values[key]
	t.bus.values[key] = value
	targets := t.bus.othersLocked(t.id)
	t.bus.mu.Unlock()

	deliver(targets, Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (t *MemoryTab) Remove(key string) error {
	t.bus.mu.Lock()
	old, ok := t.bus.values[key]
	if !ok {
		t.bus.mu.Unlock()
		return nil
	}
	delete(t.bus.values, key)
	targets := t.bus.othersLocked(t.id)
	t.bus.mu.Unlock()

	deliver(targets, Change{Key: key, OldValue: old, Removed: true})
	return nil
}

func (t *MemoryTab) Subscribe(fn func(Change)) (func(), error) {
	t.bus.mu.Lock()
	id := t.bus.nextID
	t.bus.nextID++
	t.bus.subs[id] = subscription{tabID: t.id, fn: fn}
	t.bus.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.bus.mu.Lock()
			delete(t.bus.subs, id)
			t.bus.mu.Unlock()
		})
	}, nil
}

// othersLocked collects the callbacks of every tab except writer. Callbacks
// run after the lock is released so they may call back into the bus.
func (b *MemoryBus) othersLocked(writer string) []func(Change) {
	targets := make([]func(Change), 0, len(b.subs))
	for _, s := range b.subs {
		if s.tabID == writer {
			continue
		}
		targets = append(targets, s.fn)
	}
	return targets
}

func deliver(targets []func(Change), c Change) {
	for _, fn := range targets {
		fn(c)
	}
}
