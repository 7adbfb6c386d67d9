package engine

import (
	"context"
	"sync"

	"cartsync/internal/model"
)

// localBacking adapts the blob-style local store to the Backing
// contract by load-mutate-save on every call. A mutex keeps the
// read-modify-write atomic; the per-key guards in the engine already
// serialize same-key writes, this protects cross-key ones.
type localBacking struct {
	mu    sync.Mutex
	store LocalStore
}

func newLocalBacking(store LocalStore) *localBacking {
	return &localBacking{store: store}
}

func (b *localBacking) FetchCart(ctx context.Context) ([]model.LineItem, error) {
	state, err := b.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.CartItems, nil
}

func (b *localBacking) FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	state, err := b.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return state.WishlistItems, nil
}

func (b *localBacking) AddItem(ctx context.Context, item model.LineItem) ([]model.LineItem, error) {
	var cart []model.LineItem
	err := b.update(ctx, func(state *model.StoredState) {
		replaced := false
		for i := range state.CartItems {
			if state.CartItems[i].Key() == item.Key() {
				state.CartItems[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			state.CartItems = append(state.CartItems, item)
		}
		cart = state.CartItems
	})
	return cart, err
}

func (b *localBacking) UpdateQuantity(ctx context.Context, key model.ItemKey, qty int) ([]model.LineItem, error) {
	var cart []model.LineItem
	err := b.update(ctx, func(state *model.StoredState) {
		for i := range state.CartItems {
			if state.CartItems[i].Key() == key {
				state.CartItems[i].Quantity = qty
				break
			}
		}
		cart = state.CartItems
	})
	return cart, err
}

func (b *localBacking) RemoveItem(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	var cart []model.LineItem
	err := b.update(ctx, func(state *model.StoredState) {
		kept := state.CartItems[:0]
		for _, line := range state.CartItems {
			if line.Key() != key {
				kept = append(kept, line)
			}
		}
		state.CartItems = kept
		cart = state.CartItems
	})
	return cart, err
}

func (b *localBacking) ClearCart(ctx context.Context) error {
	return b.update(ctx, func(state *model.StoredState) {
		state.CartItems = nil
	})
}

func (b *localBacking) AddWishlistEntry(ctx context.Context, entry model.WishlistEntry) ([]model.WishlistEntry, error) {
	var wishlist []model.WishlistEntry
	err := b.update(ctx, func(state *model.StoredState) {
		for _, have := range state.WishlistItems {
			if have.Key() == entry.Key() {
				wishlist = state.WishlistItems
				return
			}
		}
		state.WishlistItems = append(state.WishlistItems, entry)
		wishlist = state.WishlistItems
	})
	return wishlist, err
}

func (b *localBacking) RemoveWishlistEntry(ctx context.Context, key model.ItemKey) ([]model.WishlistEntry, error) {
	var wishlist []model.WishlistEntry
	err := b.update(ctx, func(state *model.StoredState) {
		kept := state.WishlistItems[:0]
		for _, entry := range state.WishlistItems {
			if entry.Key() != key {
				kept = append(kept, entry)
			}
		}
		state.WishlistItems = kept
		wishlist = state.WishlistItems
	})
	return wishlist, err
}

func (b *localBacking) ClearWishlist(ctx context.Context) error {
	return b.update(ctx, func(state *model.StoredState) {
		state.WishlistItems = nil
	})
}

// MoveToCart promotes a wishlist entry using the snapshot captured
// when it was saved. Offline there is no stock feed, so the line
// starts at quantity one and picks up real stock figures on the next
// login merge.
func (b *localBacking) MoveToCart(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	var cart []model.LineItem
	err := b.update(ctx, func(state *model.StoredState) {
		idx := -1
		for i, entry := range state.WishlistItems {
			if entry.Key() == key {
				idx = i
				break
			}
		}
		cart = state.CartItems
		if idx < 0 {
			return
		}
		entry := state.WishlistItems[idx]
		state.WishlistItems = append(state.WishlistItems[:idx], state.WishlistItems[idx+1:]...)

		for i := range state.CartItems {
			if state.CartItems[i].Key() == key {
				state.CartItems[i].Quantity++
				cart = state.CartItems
				return
			}
		}
		state.CartItems = append(state.CartItems, model.LineItem{
			ItemID:         entry.ItemID,
			SelectedSize:   entry.SelectedSize,
			Quantity:       1,
			UnitPrice:      entry.Snapshot.Price,
			AvailableStock: 1,
			Snapshot: model.ItemSnapshot{
				Name:  entry.Snapshot.Name,
				Image: entry.Snapshot.Image,
			},
		})
		cart = state.CartItems
	})
	return cart, err
}

func (b *localBacking) update(ctx context.Context, mutate func(*model.StoredState)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, err := b.store.Load(ctx)
	if err != nil {
		return err
	}
	mutate(&state)
	return b.store.Save(ctx, state)
}
