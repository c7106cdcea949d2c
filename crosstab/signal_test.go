package crosstab_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/crosstab"
	"github.com/jrsteele09/go-session-keeper/expiry"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestSignal_ExpiryRoundTrip(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	s := crosstab.NewSignal(bus.Tab())

	_, ok, err := s.ReadExpiry()
	require.NoError(t, err)
	require.False(t, ok)

	at := time.UnixMilli(1_800_000_000_123)
	require.NoError(t, s.WriteExpiry(at))

	got, ok, err := s.ReadExpiry()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Equal(at))

	require.NoError(t, s.ClearExpiry())
	_, ok, err = s.ReadExpiry()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignal_Clear(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	tab := bus.Tab()
	s := crosstab.NewSignal(tab)

	require.NoError(t, s.WriteExpiry(time.UnixMilli(2000)))
	require.NoError(t, s.TouchActivity(time.UnixMilli(1000)))
	require.NoError(t, s.WriteSessionID("sess-1"))

	id, ok, err := s.SessionID()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "sess-1", id)

	last, ok, err := s.LastActivity()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1000), last.UnixMilli())

	require.NoError(t, s.Clear())
	for _, key := range []string{crosstab.KeyTokenExpiry, crosstab.KeyLastActivity, crosstab.KeySessionID} {
		_, ok, err := tab.Get(key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}
}

func TestSignal_ReadMalformedExpiry(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	tab := bus.Tab()
	require.NoError(t, tab.Set(crosstab.KeyTokenExpiry, "not-a-number"))

	_, _, err := crosstab.NewSignal(tab).ReadExpiry()
	require.ErrorIs(t, err, errors.ErrMalformedTimestamp)
}

func TestSignal_OnForeignChange(t *testing.T) {
	bus := crosstab.NewMemoryBus()
	local := crosstab.NewSignal(bus.Tab())
	foreignTab := bus.Tab()
	foreign := crosstab.NewSignal(foreignTab)

	var mu sync.Mutex
	var changes []crosstab.ExpiryChange
	cancel, err := local.OnForeignChange(func(c crosstab.ExpiryChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})
	require.NoError(t, err)
	defer cancel()

	at := time.UnixMilli(1_800_000_000_000)
	require.NoError(t, foreign.WriteExpiry(at))
	require.NoError(t, foreign.TouchActivity(at))
	require.NoError(t, foreignTab.Set(crosstab.KeyTokenExpiry, "garbage"))
	require.NoError(t, local.WriteExpiry(at.Add(time.Minute)))
	require.NoError(t, foreign.ClearExpiry())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 2)
	require.False(t, changes[0].Cleared)
	require.Equal(t, expiry.Encode(at), expiry.Encode(changes[0].Expiry))
	require.True(t, changes[1].Cleared)
}
