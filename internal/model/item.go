// Package model defines the cart and wishlist data model shared by the
// stores and the sync engine, plus the error taxonomy carried across
// component boundaries.
package model

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared by the boundary constructors. validator.Validate
// caches struct metadata and is safe for concurrent use.
var validate = validator.New()

// ItemKey identifies at most one cart line item and at most one
// wishlist entry at any time. Size-less products carry an empty
// SelectedSize.
type ItemKey struct {
	ItemID       string `json:"itemId"`
	SelectedSize string `json:"selectedSize,omitempty"`
}

func (k ItemKey) String() string {
	if k.SelectedSize == "" {
		return k.ItemID
	}
	return k.ItemID + ":" + k.SelectedSize
}

// ItemSnapshot carries the display fields captured when a product was
// added to the cart, so the cart renders without a catalog round trip.
type ItemSnapshot struct {
	Name  string `json:"name" validate:"required"`
	Image string `json:"image,omitempty"`
}

// LineItem is one cart line. Quantity never exceeds AvailableStock
// after a successful write; a line with zero stock is kept (flagged,
// not silently deleted) so the shopper sees why checkout is blocked.
type LineItem struct {
	ItemID          string       `json:"itemId" validate:"required"`
	SelectedSize    string       `json:"selectedSize,omitempty"`
	Quantity        int          `json:"quantity" validate:"min=1"`
	UnitPrice       int64        `json:"unitPrice" validate:"min=0"` // minor units
	Personalization string       `json:"personalization,omitempty"`
	AvailableStock  int          `json:"availableStock" validate:"min=0"`
	Snapshot        ItemSnapshot `json:"snapshot"`
}

// Key returns the (itemId, selectedSize) identity of the line.
func (li LineItem) Key() ItemKey {
	return ItemKey{ItemID: li.ItemID, SelectedSize: li.SelectedSize}
}

// OutOfStock reports whether the last-known stock snapshot is zero.
func (li LineItem) OutOfStock() bool {
	return li.AvailableStock == 0
}

// CheckoutEligible reports whether this line may proceed to checkout.
func (li LineItem) CheckoutEligible() bool {
	return !li.OutOfStock() && li.Quantity <= li.AvailableStock
}

// EntrySnapshot carries the display fields captured when a product was
// saved to the wishlist.
type EntrySnapshot struct {
	Name        string `json:"name" validate:"required"`
	Price       int64  `json:"price" validate:"min=0"` // minor units
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// WishlistEntry is one saved product. Membership is boolean; there is
// no quantity.
type WishlistEntry struct {
	ItemID       string        `json:"itemId" validate:"required"`
	SelectedSize string        `json:"selectedSize,omitempty"`
	Snapshot     EntrySnapshot `json:"snapshot"`
}

// Key returns the (itemId, selectedSize) identity of the entry.
// Size-less entries are identified by itemId alone.
func (w WishlistEntry) Key() ItemKey {
	return ItemKey{ItemID: w.ItemID, SelectedSize: w.SelectedSize}
}

// NewLineItem validates and returns a cart line. Call sites must not
// hand ad hoc item shapes to the stores; all required fields are
// checked here, before any I/O.
func NewLineItem(li LineItem) (LineItem, error) {
	if err := validate.Struct(li); err != nil {
		return LineItem{}, NewValidationError("line item", validationReason(err))
	}
	return li, nil
}

// NewWishlistEntry validates and returns a wishlist entry.
func NewWishlistEntry(w WishlistEntry) (WishlistEntry, error) {
	if err := validate.Struct(w); err != nil {
		return WishlistEntry{}, NewValidationError("wishlist entry", validationReason(err))
	}
	return w, nil
}

// validationReason flattens the first field failure into a short reason.
func validationReason(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("field %s failed %q", fe.Field(), fe.Tag())
	}
	return err.Error()
}

// StoredState is the single serialized record the local store persists
// per device. Field names match the layout the storefront client has
// always written, so existing local data stays readable.
type StoredState struct {
	CartItems     []LineItem      `json:"cartItems"`
	WishlistItems []WishlistEntry `json:"wishlistItems"`
}
