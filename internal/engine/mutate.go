package engine

import (
	"context"

	"cartsync/internal/model"
	"cartsync/internal/notify"
	"cartsync/internal/stock"
)

// AddItem validates the line against available stock and writes it
// through the active backing. Adding a key already in the cart folds
// into a quantity update; a requested quantity above availableStock
// is clamped and the shopper told how many were left.
func (e *Engine) AddItem(ctx context.Context, item model.LineItem) error {
	item, err := model.NewLineItem(item)
	if err != nil {
		e.emitter.Emit(notify.KindCart, notify.OutcomeError, item.Snapshot.Name, userMessage(err))
		return err
	}
	return e.runKeyed(ctx, item.Key(), func() error {
		return e.doAddItem(item)
	})
}

func (e *Engine) doAddItem(item model.LineItem) error {
	key := item.Key()
	name := item.Snapshot.Name

	e.mu.Lock()
	cart := make([]model.LineItem, len(e.state.Cart))
	copy(cart, e.state.Cart)
	e.mu.Unlock()

	existing := 0
	for _, line := range cart {
		if line.Key() == key {
			existing = line.Quantity
			break
		}
	}

	res := stock.Check(cart, key, existing+item.Quantity, item.AvailableStock)
	if res.Status == stock.StatusUnavailable {
		err := model.NewUnavailableError(item.ItemID)
		e.emitter.Emit(notify.KindCart, notify.OutcomeError, name, userMessage(err))
		return err
	}
	if res.Status == stock.StatusInsufficient {
		insufficient := model.NewInsufficientStockError(item.ItemID, existing+item.Quantity, res.AvailableStock)
		e.emitter.Emit(notify.KindCart, notify.OutcomeError, name, userMessage(insufficient))
	}

	ctx, cancel := e.opContext()
	defer cancel()
	backing := e.activeBacking()

	var (
		updated []model.LineItem
		err     error
	)
	if existing > 0 {
		updated, err = backing.UpdateQuantity(ctx, key, res.Quantity)
	} else {
		item.Quantity = res.Quantity
		updated, err = backing.AddItem(ctx, item)
	}
	if err != nil {
		err = writeErr("cart add", err)
		e.handleWriteError(notify.KindCart, name, err)
		return err
	}

	e.applyCart(updated)
	if res.Status == stock.StatusOK {
		e.emitter.Emit(notify.KindCart, notify.OutcomeSuccess, name, "added to cart")
	}
	return nil
}

// UpdateQuantity sets the quantity for a line already in the cart.
// While a write for the key is in flight, concurrent calls coalesce:
// the follow-up write carries the latest requested value and every
// coalesced caller shares its result.
func (e *Engine) UpdateQuantity(ctx context.Context, key model.ItemKey, qty int) error {
	if qty < 1 {
		err := model.NewValidationError("quantity", "must be at least 1")
		e.emitter.Emit(notify.KindCart, notify.OutcomeError, key.ItemID, userMessage(err))
		return err
	}

	e.mu.Lock()
	if e.transitioning {
		ch := make(chan error, 1)
		e.queuedOps = append(e.queuedOps, func() {
			ch <- e.execKeyed(key, func() error {
				return e.doUpdateQuantity(key, qty)
			})
		})
		e.mu.Unlock()
		return e.await(ctx, ch)
	}
	slot, busy := e.slots[key]
	if busy {
		if slot.pending == nil {
			slot.pending = &pendingUpdate{}
		}
		slot.pending.qty = qty
		ch := make(chan error, 1)
		slot.pending.waiters = append(slot.pending.waiters, ch)
		e.mu.Unlock()
		return e.await(ctx, ch)
	}
	e.slots[key] = &keySlot{}
	e.mu.Unlock()

	err := e.doUpdateQuantity(key, qty)
	e.finishKey(key)
	return err
}

func (e *Engine) doUpdateQuantity(key model.ItemKey, qty int) error {
	e.mu.Lock()
	var line *model.LineItem
	for i := range e.state.Cart {
		if e.state.Cart[i].Key() == key {
			l := e.state.Cart[i]
			line = &l
			break
		}
	}
	cart := make([]model.LineItem, len(e.state.Cart))
	copy(cart, e.state.Cart)
	e.mu.Unlock()

	if line == nil {
		err := model.NewValidationError("item", "not in cart")
		e.emitter.Emit(notify.KindCart, notify.OutcomeError, key.ItemID, userMessage(err))
		return err
	}
	name := line.Snapshot.Name

	if qty > line.Quantity {
		res := stock.Check(cart, key, qty, line.AvailableStock)
		if res.Status == stock.StatusUnavailable {
			err := model.NewUnavailableError(key.ItemID)
			e.emitter.Emit(notify.KindCart, notify.OutcomeError, name, userMessage(err))
			return err
		}
		if res.Status == stock.StatusInsufficient {
			insufficient := model.NewInsufficientStockError(key.ItemID, qty, res.AvailableStock)
			e.emitter.Emit(notify.KindCart, notify.OutcomeError, name, userMessage(insufficient))
		}
		qty = res.Quantity
	}

	ctx, cancel := e.opContext()
	defer cancel()

	updated, err := e.activeBacking().UpdateQuantity(ctx, key, qty)
	if err != nil {
		err = writeErr("cart update", err)
		e.handleWriteError(notify.KindCart, name, err)
		return err
	}

	e.applyCart(updated)
	return nil
}

// RemoveItem deletes a line from the cart. Removing a key that is not
// present is a no-op success, so double-clicks and stale UI rows never
// surface errors.
func (e *Engine) RemoveItem(ctx context.Context, key model.ItemKey) error {
	return e.runKeyed(ctx, key, func() error {
		return e.doRemoveItem(key)
	})
}

func (e *Engine) doRemoveItem(key model.ItemKey) error {
	e.mu.Lock()
	var name string
	found := false
	for _, line := range e.state.Cart {
		if line.Key() == key {
			name = line.Snapshot.Name
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return nil
	}

	ctx, cancel := e.opContext()
	defer cancel()

	updated, err := e.activeBacking().RemoveItem(ctx, key)
	if err != nil {
		err = writeErr("cart remove", err)
		e.handleWriteError(notify.KindCart, name, err)
		return err
	}

	e.applyCart(updated)
	e.emitter.Emit(notify.KindCart, notify.OutcomeSuccess, name, "removed from cart")
	return nil
}

// ClearCart empties the cart on the active backing. Mid login/logout
// the clear queues behind the transition, so it lands on the backing
// that owns the merged state rather than the store being drained.
func (e *Engine) ClearCart(ctx context.Context) error {
	return e.runUnkeyed(ctx, e.doClearCart)
}

func (e *Engine) doClearCart() error {
	opCtx, cancel := e.opContext()
	defer cancel()

	if err := e.activeBacking().ClearCart(opCtx); err != nil {
		err = writeErr("cart clear", err)
		e.handleWriteError(notify.KindCart, "", err)
		return err
	}
	e.applyCart(nil)
	e.emitter.Emit(notify.KindCart, notify.OutcomeSuccess, "", "cart cleared")
	return nil
}

// ToggleWishlist adds the entry when absent and removes it when
// present. Membership is decided when the op actually runs, not when
// it is called, so back-to-back toggles net out to the original state.
func (e *Engine) ToggleWishlist(ctx context.Context, entry model.WishlistEntry) error {
	entry, err := model.NewWishlistEntry(entry)
	if err != nil {
		e.emitter.Emit(notify.KindWishlist, notify.OutcomeError, entry.Snapshot.Name, userMessage(err))
		return err
	}
	return e.runKeyed(ctx, entry.Key(), func() error {
		return e.doToggleWishlist(entry)
	})
}

func (e *Engine) doToggleWishlist(entry model.WishlistEntry) error {
	key := entry.Key()
	name := entry.Snapshot.Name

	e.mu.Lock()
	present := false
	for _, have := range e.state.Wishlist {
		if have.Key() == key {
			present = true
			break
		}
	}
	e.mu.Unlock()

	ctx, cancel := e.opContext()
	defer cancel()
	backing := e.activeBacking()

	var (
		updated []model.WishlistEntry
		err     error
	)
	if present {
		updated, err = backing.RemoveWishlistEntry(ctx, key)
	} else {
		updated, err = backing.AddWishlistEntry(ctx, entry)
	}
	if err != nil {
		err = writeErr("wishlist update", err)
		e.handleWriteError(notify.KindWishlist, name, err)
		return err
	}

	e.applyWishlist(updated)
	if present {
		e.emitter.Emit(notify.KindWishlist, notify.OutcomeSuccess, name, "removed from wishlist")
	} else {
		e.emitter.Emit(notify.KindWishlist, notify.OutcomeSuccess, name, "added to wishlist")
	}
	return nil
}

// ClearWishlist empties the wishlist on the active backing, queueing
// behind an in-progress login/logout the same way ClearCart does.
func (e *Engine) ClearWishlist(ctx context.Context) error {
	return e.runUnkeyed(ctx, e.doClearWishlist)
}

func (e *Engine) doClearWishlist() error {
	opCtx, cancel := e.opContext()
	defer cancel()

	if err := e.activeBacking().ClearWishlist(opCtx); err != nil {
		err = writeErr("wishlist clear", err)
		e.handleWriteError(notify.KindWishlist, "", err)
		return err
	}
	e.applyWishlist(nil)
	e.emitter.Emit(notify.KindWishlist, notify.OutcomeSuccess, "", "wishlist cleared")
	return nil
}

// MoveToCart promotes a wishlist entry to a cart line in one backing
// round trip, then refreshes the wishlist so both collections stay
// consistent.
func (e *Engine) MoveToCart(ctx context.Context, key model.ItemKey) error {
	return e.runKeyed(ctx, key, func() error {
		return e.doMoveToCart(key)
	})
}

func (e *Engine) doMoveToCart(key model.ItemKey) error {
	e.mu.Lock()
	var name string
	found := false
	for _, entry := range e.state.Wishlist {
		if entry.Key() == key {
			name = entry.Snapshot.Name
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		err := model.NewValidationError("item", "not in wishlist")
		e.emitter.Emit(notify.KindWishlist, notify.OutcomeError, key.ItemID, userMessage(err))
		return err
	}

	ctx, cancel := e.opContext()
	defer cancel()
	backing := e.activeBacking()

	cart, err := backing.MoveToCart(ctx, key)
	if err != nil {
		err = writeErr("move to cart", err)
		e.handleWriteError(notify.KindWishlist, name, err)
		return err
	}
	wishlist, err := backing.FetchWishlist(ctx)
	if err != nil {
		err = writeErr("move to cart", err)
		e.handleWriteError(notify.KindWishlist, name, err)
		return err
	}

	e.applyCart(cart)
	e.applyWishlist(wishlist)
	e.emitter.Emit(notify.KindCart, notify.OutcomeSuccess, name, "moved to cart")
	return nil
}
