package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitAssignsIdentityAndExpiry(t *testing.T) {
	e := NewEmitter()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return base }

	n := e.Emit(KindCart, OutcomeSuccess, "Linen Shirt", "added to cart")

	require.NotEmpty(t, n.ID)
	assert.Equal(t, base.Add(DisplayDuration), n.ExpiresAt)

	other := e.Emit(KindCart, OutcomeError, "Linen Shirt", "could not update")
	assert.NotEqual(t, n.ID, other.ID, "identifiers must be unique")
}

func TestQueueOrderAndDismiss(t *testing.T) {
	e := NewEmitter()

	first := e.Emit(KindCart, OutcomeSuccess, "", "one")
	second := e.Emit(KindWishlist, OutcomeSuccess, "", "two")
	third := e.Emit(KindGeneral, OutcomeError, "", "three")

	active := e.Active()
	require.Len(t, active, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID},
		[]string{active[0].ID, active[1].ID, active[2].ID}, "queue keeps emission order")

	assert.True(t, e.Dismiss(second.ID))
	assert.False(t, e.Dismiss(second.ID), "dismissing twice is a no-op")
	assert.False(t, e.Dismiss("nope"))

	active = e.Active()
	require.Len(t, active, 2)
	assert.Equal(t, first.ID, active[0].ID)
	assert.Equal(t, third.ID, active[1].ID)
}

func TestActivePrunesExpired(t *testing.T) {
	e := NewEmitter()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	e.now = func() time.Time { return now }

	stale := e.Emit(KindCart, OutcomeSuccess, "", "stale")
	now = base.Add(DisplayDuration / 2)
	fresh := e.Emit(KindCart, OutcomeSuccess, "", "fresh")

	now = base.Add(DisplayDuration + time.Millisecond)
	active := e.Active()
	require.Len(t, active, 1)
	assert.Equal(t, fresh.ID, active[0].ID)
	_ = stale

	assert.False(t, e.Dismiss(stale.ID), "pruned notification is gone")
}

func TestSubscribeFanOut(t *testing.T) {
	e := NewEmitter()
	ch, cancel := e.Subscribe()
	defer cancel()

	sent := e.Emit(KindCart, OutcomeError, "Linen Shirt", "out of stock")

	select {
	case got := <-ch:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, OutcomeError, got.Outcome)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive notification")
	}

	cancel()
	// Emissions after cancel must not panic on the closed channel.
	e.Emit(KindCart, OutcomeSuccess, "", "after cancel")
}
