package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cartsync/internal/model"
)

// LocalStore is the slice of the local store the merge needs.
type LocalStore interface {
	Load(ctx context.Context) (model.StoredState, error)
	Clear(ctx context.Context) error
}

// RemoteStore is the slice of the remote store the merge needs.
type RemoteStore interface {
	FetchCart(ctx context.Context) ([]model.LineItem, error)
	AddItem(ctx context.Context, item model.LineItem) ([]model.LineItem, error)
	FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error)
	AddWishlistEntry(ctx context.Context, entry model.WishlistEntry) ([]model.WishlistEntry, error)
}

// FailedItem records one local item that could not be restored
// remotely (e.g. it went out of stock before login).
type FailedItem struct {
	Key  model.ItemKey
	Name string
	Err  error
}

// Report summarizes a merge: the post-merge remote collections plus
// what was restored, skipped, or lost. Failed items drive a single
// batched notification; they are not retried on a later login.
type Report struct {
	Cart     []model.LineItem
	Wishlist []model.WishlistEntry

	RestoredCart     int
	RestoredWishlist int
	RemoteWins       int
	Failed           []FailedItem
}

// Coordinator drains the local store into the remote store exactly
// once. The engine constructs a fresh coordinator per login event.
type Coordinator struct {
	local  LocalStore
	remote RemoteStore
	logger *slog.Logger

	once   sync.Once
	report Report
	err    error
}

// New creates a merge coordinator for one login event.
func New(local LocalStore, remote RemoteStore, logger *slog.Logger) *Coordinator {
	return &Coordinator{local: local, remote: remote, logger: logger}
}

// Run executes the merge. Subsequent calls return the first run's
// result without touching either store.
//
// Every attempted add is independent: one item failing (out of stock,
// catalog removal) does not abort the rest. After the add phase the
// local store is cleared unconditionally, merged or not. If the
// remote fetch itself fails, no adds were attempted, local state is
// kept, and the login transition fails as a whole.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	c.once.Do(func() {
		c.report, c.err = c.run(ctx)
	})
	return c.report, c.err
}

func (c *Coordinator) run(ctx context.Context) (Report, error) {
	localState, err := c.local.Load(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("loading local state: %w", err)
	}

	remoteCart, err := c.remote.FetchCart(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetching remote cart: %w", err)
	}
	remoteWishlist, err := c.remote.FetchWishlist(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetching remote wishlist: %w", err)
	}

	report := Report{Cart: remoteCart, Wishlist: remoteWishlist}

	cartPlan := PlanCart(localState.CartItems, remoteCart)
	report.RemoteWins = len(cartPlan.RemoteWins)
	for _, key := range cartPlan.RemoteWins {
		c.logger.Debug("merge: remote quantity wins", slog.String("key", key.String()))
	}

	for _, li := range cartPlan.ToAdd {
		cart, err := c.remote.AddItem(ctx, li)
		if err != nil {
			c.logger.Warn("merge: cart item not restored",
				slog.String("key", li.Key().String()),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, FailedItem{
				Key:  li.Key(),
				Name: li.Snapshot.Name,
				Err:  err,
			})
			continue
		}
		report.Cart = cart
		report.RestoredCart++
	}

	wishlistPlan := PlanWishlist(localState.WishlistItems, remoteWishlist)
	for _, entry := range wishlistPlan.ToAdd {
		wishlist, err := c.remote.AddWishlistEntry(ctx, entry)
		if err != nil {
			c.logger.Warn("merge: wishlist entry not restored",
				slog.String("key", entry.Key().String()),
				slog.String("error", err.Error()),
			)
			report.Failed = append(report.Failed, FailedItem{
				Key:  entry.Key(),
				Name: entry.Snapshot.Name,
				Err:  err,
			})
			continue
		}
		report.Wishlist = wishlist
		report.RestoredWishlist++
	}

	// Unconditional: a failed item is not retried on a later login.
	if err := c.local.Clear(ctx); err != nil {
		c.logger.Error("merge: local clear failed", slog.String("error", err.Error()))
	}

	return report, nil
}
