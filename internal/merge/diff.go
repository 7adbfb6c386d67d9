// Package merge reconciles device-local cart and wishlist state into
// the remote store at the login transition. The server is the
// authoritative source of truth post-login: on a key conflict the
// remote quantity wins and the local line is discarded, which avoids
// double-adds at the cost of dropping pre-login quantity edits.
package merge

import (
	"cartsync/internal/model"
)

// CartPlan describes the mutations a cart merge needs. Only adds
// exist: conflicting keys are resolved in place by keeping the remote
// line untouched.
type CartPlan struct {
	ToAdd      []model.LineItem // keys present locally only
	RemoteWins []model.ItemKey  // keys present on both sides; local discarded
}

// IsEmpty returns true if the merge has nothing to push.
func (p CartPlan) IsEmpty() bool {
	return len(p.ToAdd) == 0
}

// PlanCart computes the cart merge plan.
//
// Algorithm:
//  1. Index the remote cart by key for O(1) lookups
//  2. Local key present remotely → remote wins, discard local
//  3. Local key absent remotely → add from local
func PlanCart(local, remote []model.LineItem) CartPlan {
	remoteByKey := make(map[model.ItemKey]model.LineItem, len(remote))
	for _, li := range remote {
		remoteByKey[li.Key()] = li
	}

	var plan CartPlan
	for _, li := range local {
		if _, exists := remoteByKey[li.Key()]; exists {
			plan.RemoteWins = append(plan.RemoteWins, li.Key())
			continue
		}
		plan.ToAdd = append(plan.ToAdd, li)
	}
	return plan
}

// WishlistPlan describes the entries a wishlist merge needs to add.
// Membership is boolean, so a key on both sides needs nothing.
type WishlistPlan struct {
	ToAdd          []model.WishlistEntry
	AlreadyPresent []model.ItemKey
}

// IsEmpty returns true if the merge has nothing to push.
func (p WishlistPlan) IsEmpty() bool {
	return len(p.ToAdd) == 0
}

// PlanWishlist computes the wishlist merge plan: the membership union,
// with the remote snapshot kept for entries present on both sides.
func PlanWishlist(local, remote []model.WishlistEntry) WishlistPlan {
	remoteByKey := make(map[model.ItemKey]struct{}, len(remote))
	for _, e := range remote {
		remoteByKey[e.Key()] = struct{}{}
	}

	var plan WishlistPlan
	for _, e := range local {
		if _, exists := remoteByKey[e.Key()]; exists {
			plan.AlreadyPresent = append(plan.AlreadyPresent, e.Key())
			continue
		}
		plan.ToAdd = append(plan.ToAdd, e)
	}
	return plan
}
