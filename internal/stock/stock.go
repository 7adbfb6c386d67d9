// Package stock validates requested quantities against the last-known
// stock snapshot carried on each line item. Checks are synchronous, so
// a quantity click costs no network round trip. Snapshots refresh
// whenever the backing store returns updated item data.
package stock

import (
	"cartsync/internal/model"
)

// Status classifies a stock check outcome.
type Status string

const (
	// StatusOK means the requested quantity fits available stock.
	StatusOK Status = "ok"

	// StatusInsufficient means the request exceeded available stock
	// and was clamped down to it.
	StatusInsufficient Status = "insufficient"

	// StatusUnavailable means the item has zero stock. The mutation is
	// rejected outright; no zero-quantity line items are ever created.
	StatusUnavailable Status = "unavailable"
)

// Result reports a check outcome. Quantity is the amount the caller
// should actually write: the request as-is for StatusOK, the clamped
// amount for StatusInsufficient, zero for StatusUnavailable.
type Result struct {
	Status         Status
	AvailableStock int
	Quantity       int
}

// Check validates a requested quantity for (itemID, size) against the
// in-memory cart lines, falling back to fallbackStock (the snapshot on
// an incoming item that is not in the cart yet).
func Check(lines []model.LineItem, key model.ItemKey, requested, fallbackStock int) Result {
	available := fallbackStock
	for _, li := range lines {
		if li.Key() == key {
			available = li.AvailableStock
			break
		}
	}

	switch {
	case available <= 0:
		return Result{Status: StatusUnavailable, AvailableStock: 0}
	case requested > available:
		return Result{Status: StatusInsufficient, AvailableStock: available, Quantity: available}
	default:
		return Result{Status: StatusOK, AvailableStock: available, Quantity: requested}
	}
}
