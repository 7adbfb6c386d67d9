package remotestore

import (
	"cartsync/internal/model"
)

// Wire types for the storefront backend cart/wishlist API. The backend
// serializes prices as decimal strings; everything else matches the
// in-memory model. Transform helpers below keep the conversion in one
// place.

type wireSnapshot struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

type wireLineItem struct {
	ItemID          string       `json:"itemId"`
	SelectedSize    string       `json:"selectedSize,omitempty"`
	Quantity        int          `json:"quantity"`
	UnitPrice       string       `json:"unitPrice"`
	Personalization string       `json:"personalization,omitempty"`
	AvailableStock  int          `json:"availableStock"`
	Snapshot        wireSnapshot `json:"snapshot"`
}

type wireWishlistEntry struct {
	ItemID       string       `json:"itemId"`
	SelectedSize string       `json:"selectedSize,omitempty"`
	Snapshot     wireSnapshot `json:"snapshot"`
}

// cartResponse is the backend's envelope for every cart operation.
// Mutations return the full refreshed cart, which is how stock
// snapshots propagate back into memory.
type cartResponse struct {
	Success   bool           `json:"success"`
	CartItems []wireLineItem `json:"cartItems"`
	Message   string         `json:"message,omitempty"`
}

// wishlistResponse is the envelope for wishlist operations.
type wishlistResponse struct {
	Success       bool                `json:"success"`
	WishlistItems []wireWishlistEntry `json:"wishlistItems"`
	Message       string              `json:"message,omitempty"`
}

// errorResponse is the backend's non-2xx body.
type errorResponse struct {
	Message string `json:"message"`
}

// updateQuantityRequest is the PUT /cart/item/{key} body.
type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func lineItemFromWire(w wireLineItem) model.LineItem {
	return model.LineItem{
		ItemID:          w.ItemID,
		SelectedSize:    w.SelectedSize,
		Quantity:        w.Quantity,
		UnitPrice:       model.ParseCents(w.UnitPrice),
		Personalization: w.Personalization,
		AvailableStock:  w.AvailableStock,
		Snapshot: model.ItemSnapshot{
			Name:  w.Snapshot.Name,
			Image: w.Snapshot.Image,
		},
	}
}

func lineItemToWire(li model.LineItem) wireLineItem {
	return wireLineItem{
		ItemID:          li.ItemID,
		SelectedSize:    li.SelectedSize,
		Quantity:        li.Quantity,
		UnitPrice:       model.FormatCents(li.UnitPrice),
		Personalization: li.Personalization,
		AvailableStock:  li.AvailableStock,
		Snapshot: wireSnapshot{
			Name:  li.Snapshot.Name,
			Image: li.Snapshot.Image,
		},
	}
}

func entryFromWire(w wireWishlistEntry) model.WishlistEntry {
	return model.WishlistEntry{
		ItemID:       w.ItemID,
		SelectedSize: w.SelectedSize,
		Snapshot: model.EntrySnapshot{
			Name:        w.Snapshot.Name,
			Price:       model.ParseCents(w.Snapshot.Price),
			Image:       w.Snapshot.Image,
			Description: w.Snapshot.Description,
			Category:    w.Snapshot.Category,
		},
	}
}

func entryToWire(e model.WishlistEntry) wireWishlistEntry {
	return wireWishlistEntry{
		ItemID:       e.ItemID,
		SelectedSize: e.SelectedSize,
		Snapshot: wireSnapshot{
			Name:        e.Snapshot.Name,
			Price:       model.FormatCents(e.Snapshot.Price),
			Image:       e.Snapshot.Image,
			Description: e.Snapshot.Description,
			Category:    e.Snapshot.Category,
		},
	}
}

func cartFromWire(items []wireLineItem) []model.LineItem {
	out := make([]model.LineItem, len(items))
	for i, w := range items {
		out[i] = lineItemFromWire(w)
	}
	return out
}

func wishlistFromWire(items []wireWishlistEntry) []model.WishlistEntry {
	out := make([]model.WishlistEntry, len(items))
	for i, w := range items {
		out[i] = entryFromWire(w)
	}
	return out
}
