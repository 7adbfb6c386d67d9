package engine

import (
	"context"
	"fmt"
	"log/slog"

	"cartsync/internal/merge"
	"cartsync/internal/model"
	"cartsync/internal/notify"
)

// Login installs the credential, drains the local store into the
// remote one, and repoints the backing to remote. The backing only
// switches after the merge succeeds: if the remote store cannot even
// be fetched, the session stays local-backed with its data intact and
// the credential is revoked again.
//
// Mutations issued while the merge runs are queued and replayed
// against whichever backing wins.
func (e *Engine) Login(ctx context.Context, token string) error {
	if token == "" {
		return model.NewValidationError("token", "is required")
	}

	e.mu.Lock()
	if e.state.Backing == BackingRemote {
		e.mu.Unlock()
		return nil
	}
	if e.transitioning {
		e.mu.Unlock()
		return model.NewConflictError("a session transition is already in progress")
	}
	e.transitioning = true
	e.mu.Unlock()
	defer e.settleTransition()

	// Writes already holding a key guard were bound to the local store;
	// let them land there before the merge reads it, so their result
	// merges instead of overwriting the merged state afterward.
	e.waitForIdle()

	e.creds.set(token)

	mergeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
	defer cancel()

	report, err := merge.New(e.local, e.remote, e.logger).Run(mergeCtx)
	if err != nil {
		e.creds.set("")
		e.emitter.Emit(notify.KindGeneral, notify.OutcomeError, "", "could not sync your cart, please try again")
		e.logger.Error("login merge failed", slog.String("error", err.Error()))
		return err
	}

	e.mu.Lock()
	e.state.Backing = BackingRemote
	e.state.Cart = report.Cart
	e.state.Wishlist = report.Wishlist
	e.state.Initialized = true
	e.mu.Unlock()
	e.notifyChange()

	e.emitter.Emit(notify.KindGeneral, notify.OutcomeSuccess, "", "your cart and wishlist are synced")
	if n := len(report.Failed); n > 0 {
		e.emitter.Emit(notify.KindGeneral, notify.OutcomeError, "",
			fmt.Sprintf("%d items could not be restored", n))
	}

	e.logger.Info("session promoted to remote backing",
		slog.Int("restored_cart", report.RestoredCart),
		slog.Int("restored_wishlist", report.RestoredWishlist),
		slog.Int("remote_wins", report.RemoteWins),
		slog.Int("failed", len(report.Failed)))
	return nil
}

// Logout revokes the credential and repoints the backing to the local
// store, rehydrating from whatever it holds. Remote data is not
// carried over; it belongs to the account, not the device.
func (e *Engine) Logout(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Backing == BackingLocal {
		e.mu.Unlock()
		return nil
	}
	if e.transitioning {
		e.mu.Unlock()
		return model.NewConflictError("a session transition is already in progress")
	}
	e.transitioning = true
	e.mu.Unlock()
	defer e.settleTransition()

	e.waitForIdle()

	e.creds.set("")

	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	stored, err := e.local.Load(loadCtx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.state.Backing = BackingLocal
	e.state.Cart = stored.CartItems
	e.state.Wishlist = stored.WishlistItems
	e.state.Initialized = true
	e.mu.Unlock()
	e.notifyChange()

	e.logger.Info("session reverted to local backing")
	return nil
}

// settleTransition reopens the engine for mutations and replays, in
// order, everything that queued while the transition ran.
func (e *Engine) settleTransition() {
	e.mu.Lock()
	e.transitioning = false
	queued := e.queuedOps
	e.queuedOps = nil
	e.mu.Unlock()

	for _, op := range queued {
		op()
	}
}
