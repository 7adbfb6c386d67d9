package agent

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"cartsync/internal/engine"
	"cartsync/internal/model"
	"cartsync/internal/notify"
)

// memoryStore is an in-memory engine.LocalStore.
type memoryStore struct {
	mu    sync.Mutex
	state model.StoredState
}

func (m *memoryStore) Load(ctx context.Context) (model.StoredState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *memoryStore) Save(ctx context.Context, state model.StoredState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = model.StoredState{}
	return nil
}

// unusedBacking satisfies engine.Backing for tests that never leave
// the local session.
type unusedBacking struct{}

func (unusedBacking) FetchCart(ctx context.Context) ([]model.LineItem, error) { return nil, nil }
func (unusedBacking) AddItem(ctx context.Context, item model.LineItem) ([]model.LineItem, error) {
	return nil, nil
}
func (unusedBacking) UpdateQuantity(ctx context.Context, key model.ItemKey, qty int) ([]model.LineItem, error) {
	return nil, nil
}
func (unusedBacking) RemoveItem(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	return nil, nil
}
func (unusedBacking) ClearCart(ctx context.Context) error { return nil }
func (unusedBacking) FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	return nil, nil
}
func (unusedBacking) AddWishlistEntry(ctx context.Context, entry model.WishlistEntry) ([]model.WishlistEntry, error) {
	return nil, nil
}
func (unusedBacking) RemoveWishlistEntry(ctx context.Context, key model.ItemKey) ([]model.WishlistEntry, error) {
	return nil, nil
}
func (unusedBacking) ClearWishlist(ctx context.Context) error { return nil }
func (unusedBacking) MoveToCart(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	return nil, nil
}

func testServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(engine.Config{
		Local:       &memoryStore{},
		Remote:      unusedBacking{},
		Credentials: engine.NewCredentials(),
		Emitter:     notify.NewEmitter(),
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("engine.New() error = %v", err)
	}
	if err := eng.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return NewServer(eng, logger)
}

func TestAddItemToolReturnsState(t *testing.T) {
	s := testServer(t)

	_, view, err := s.mcpAddItem(context.Background(), nil, AddItemInput{
		ItemID:         "p1",
		SelectedSize:   "M",
		Quantity:       2,
		UnitPrice:      "19.99",
		AvailableStock: 5,
		Name:           "Trail Jacket",
	})
	if err != nil {
		t.Fatalf("cart_add_item error = %v", err)
	}

	if view.Backing != "local" {
		t.Errorf("backing = %q, want local", view.Backing)
	}
	if len(view.Cart) != 1 {
		t.Fatalf("cart length = %d, want 1", len(view.Cart))
	}
	line := view.Cart[0]
	if line.Quantity != 2 || line.UnitPrice != "19.99" || line.Name != "Trail Jacket" {
		t.Errorf("unexpected line: %+v", line)
	}
	if !line.CheckoutEligible {
		t.Error("line should be checkout eligible")
	}
}

func TestAddItemToolRejectsBadPrice(t *testing.T) {
	s := testServer(t)

	_, _, err := s.mcpAddItem(context.Background(), nil, AddItemInput{
		ItemID:         "p1",
		Quantity:       1,
		UnitPrice:      "nineteen",
		AvailableStock: 5,
		Name:           "Trail Jacket",
	})
	if err == nil {
		t.Fatal("cart_add_item accepted a non-numeric price")
	}
	if !strings.Contains(err.Error(), "invalid_input") {
		t.Errorf("error = %v, want invalid_input prefix", err)
	}
}

func TestToolErrorsCarryCode(t *testing.T) {
	s := testServer(t)

	// Out-of-stock add surfaces the typed code, not a raw error dump.
	_, _, err := s.mcpAddItem(context.Background(), nil, AddItemInput{
		ItemID:         "p1",
		Quantity:       1,
		UnitPrice:      "10.00",
		AvailableStock: 0,
		Name:           "Trail Jacket",
	})
	if err == nil {
		t.Fatal("cart_add_item accepted an out-of-stock item")
	}
	if !strings.Contains(err.Error(), "UNAVAILABLE") {
		t.Errorf("error = %v, want UNAVAILABLE code", err)
	}
}

func TestWishlistToggleTool(t *testing.T) {
	s := testServer(t)

	input := ToggleWishlistInput{
		ItemID: "p2",
		Name:   "Wool Beanie",
		Price:  "24.50",
	}

	_, view, err := s.mcpToggleWishlist(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("wishlist_toggle error = %v", err)
	}
	if len(view.Wishlist) != 1 {
		t.Fatalf("wishlist length = %d, want 1", len(view.Wishlist))
	}
	if view.Wishlist[0].Price != "24.50" {
		t.Errorf("price = %q, want 24.50", view.Wishlist[0].Price)
	}

	_, view, err = s.mcpToggleWishlist(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("second wishlist_toggle error = %v", err)
	}
	if len(view.Wishlist) != 0 {
		t.Errorf("wishlist length = %d after second toggle, want 0", len(view.Wishlist))
	}
}

func TestRemoveAbsentItemTool(t *testing.T) {
	s := testServer(t)

	_, view, err := s.mcpRemoveItem(context.Background(), nil, ItemRefInput{ItemID: "ghost"})
	if err != nil {
		t.Fatalf("cart_remove_item error = %v", err)
	}
	if len(view.Cart) != 0 {
		t.Errorf("cart length = %d, want 0", len(view.Cart))
	}
}
