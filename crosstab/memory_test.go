package crosstab_test

import (
	"sync"
	"testing"

	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changes []crosstab.Change
}

func (r *recorder) record(c crosstab.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) all() []crosstab.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]crosstab.Change(nil), r.changes...)
}

func TestMemoryBus_WriterIsNotNotified(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	a, b := bus.Tab(), bus.Tab()
	require.NotEqual(t, a.ID(), b.ID())

	var seenA, seenB recorder
	_, err := a.Subscribe(seenA.record)
	require.NoError(t, err)
	_, err = b.Subscribe(seenB.record)
	require.NoError(t, err)

	require.NoError(t, a.Set(crosstab.KeyTokenExpiry, "100"))

	require.Empty(t, seenA.all())
	require.Equal(t, []crosstab.Change{{Key: crosstab.KeyTokenExpiry, NewValue: "100"}}, seenB.all())

	v, ok, err := b.Get(crosstab.KeyTokenExpiry)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "100", v)
}

func TestMemoryBus_Remove(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	a, b := bus.Tab(), bus.Tab()

	var seen recorder
	_, err := b.Subscribe(seen.record)
	require.NoError(t, err)

	t.Run("absent key notifies nobody", func(t *testing.T) {
		require.NoError(t, a.Remove(crosstab.KeyTokenExpiry))
		require.Empty(t, seen.all())
	})

	t.Run("present key notifies other tabs", func(t *testing.T) {
		require.NoError(t, a.Set(crosstab.KeyTokenExpiry, "100"))
		require.NoError(t, a.Remove(crosstab.KeyTokenExpiry))

		changes := seen.all()
		require.Len(t, changes, 2)
		require.Equal(t, crosstab.Change{Key: crosstab.KeyTokenExpiry, OldValue: "100", Removed: true}, changes[1])

		_, ok, err := b.Get(crosstab.KeyTokenExpiry)
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMemoryBus_CancelSubscription(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	a, b := bus.Tab(), bus.Tab()

	var seen recorder
	cancel, err := b.Subscribe(seen.record)
	require.NoError(t, err)
	cancel()
	cancel()

	require.NoError(t, a.Set(crosstab.KeySessionID, "s-1"))
	require.Empty(t, seen.all())
}

func TestMemoryBus_CallbackMayWrite(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	a, b := bus.Tab(), bus.Tab()

	_, err := b.Subscribe(func(c crosstab.Change) {
		if c.Key == crosstab.KeyTokenExpiry {
			require.NoError(t, b.Set(crosstab.KeyLastActivity, c.NewValue))
		}
	})
	require.NoError(t, err)

	require.NoError(t, a.Set(crosstab.KeyTokenExpiry, "42"))

	v, ok, err := a.Get(crosstab.KeyLastActivity)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "42", v)
}
