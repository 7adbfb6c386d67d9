package localstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cartsync/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	s := openTestStore(t)

	state, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, state.CartItems)
	assert.NotNil(t, state.WishlistItems)
	assert.Empty(t, state.CartItems)
	assert.Empty(t, state.WishlistItems)
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	state := model.StoredState{
		CartItems: []model.LineItem{{
			ItemID:         "p1",
			SelectedSize:   "M",
			Quantity:       2,
			UnitPrice:      4500,
			AvailableStock: 9,
			Snapshot:       model.ItemSnapshot{Name: "Linen Shirt"},
		}},
		WishlistItems: []model.WishlistEntry{{
			ItemID:   "p2",
			Snapshot: model.EntrySnapshot{Name: "Wool Scarf", Price: 2900},
		}},
	}

	require.NoError(t, s.Save(ctx, state))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.CartItems, got.CartItems)
	assert.Equal(t, state.WishlistItems, got.WishlistItems)
}

func TestSaveOverwritesPreviousRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := model.StoredState{CartItems: []model.LineItem{{
		ItemID: "p1", Quantity: 1, AvailableStock: 5,
		Snapshot: model.ItemSnapshot{Name: "A"},
	}}}
	second := model.StoredState{CartItems: []model.LineItem{{
		ItemID: "p2", Quantity: 3, AvailableStock: 4,
		Snapshot: model.ItemSnapshot{Name: "B"},
	}}}

	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.CartItems, 1)
	assert.Equal(t, "p2", got.CartItems[0].ItemID)
}

func TestClear(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, model.StoredState{
		CartItems: []model.LineItem{{ItemID: "p1", Quantity: 1, AvailableStock: 1,
			Snapshot: model.ItemSnapshot{Name: "A"}}},
	}))
	require.NoError(t, s.Clear(ctx))
	// Clearing twice is a no-op success.
	require.NoError(t, s.Clear(ctx))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, got.CartItems)
}

func TestCorruptPayloadTreatedAsEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO local_state (storage_key, payload) VALUES (?, ?)`,
		storageKey, `{"cartItems": [unclosed`)
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err, "corrupt data must not surface as an error")
	assert.Empty(t, got.CartItems)
	assert.Empty(t, got.WishlistItems)
}
