// Package agent exposes cart and wishlist operations as MCP tools,
// so shopping agents drive the same engine the storefront UI does.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"cartsync/internal/engine"
	"cartsync/internal/model"
)

// === Tool Input/Output Types ===

// AddItemInput is the input schema for the cart_add_item tool.
type AddItemInput struct {
	ItemID          string `json:"itemId" jsonschema:"product ID,required"`
	SelectedSize    string `json:"selectedSize,omitempty" jsonschema:"size variant"`
	Quantity        int    `json:"quantity" jsonschema:"quantity,required"`
	UnitPrice       string `json:"unitPrice" jsonschema:"unit price as decimal string,required"`
	AvailableStock  int    `json:"availableStock" jsonschema:"units in stock,required"`
	Name            string `json:"name" jsonschema:"display name,required"`
	Image           string `json:"image,omitempty" jsonschema:"product image URL"`
	Personalization string `json:"personalization,omitempty" jsonschema:"personalization text"`
}

// UpdateQuantityInput is the input schema for the cart_update_quantity tool.
type UpdateQuantityInput struct {
	ItemID       string `json:"itemId" jsonschema:"product ID,required"`
	SelectedSize string `json:"selectedSize,omitempty" jsonschema:"size variant"`
	Quantity     int    `json:"quantity" jsonschema:"new quantity,required"`
}

// ItemRefInput identifies one cart line or wishlist entry.
type ItemRefInput struct {
	ItemID       string `json:"itemId" jsonschema:"product ID,required"`
	SelectedSize string `json:"selectedSize,omitempty" jsonschema:"size variant"`
}

// ToggleWishlistInput is the input schema for the wishlist_toggle tool.
type ToggleWishlistInput struct {
	ItemID       string `json:"itemId" jsonschema:"product ID,required"`
	SelectedSize string `json:"selectedSize,omitempty" jsonschema:"size variant"`
	Name         string `json:"name" jsonschema:"display name,required"`
	Price        string `json:"price" jsonschema:"price as decimal string,required"`
	Image        string `json:"image,omitempty" jsonschema:"product image URL"`
	Description  string `json:"description,omitempty" jsonschema:"product description"`
	Category     string `json:"category,omitempty" jsonschema:"product category"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// CartLineView is one cart line in tool output.
type CartLineView struct {
	ItemID           string `json:"itemId"`
	SelectedSize     string `json:"selectedSize,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPrice        string `json:"unitPrice"`
	Name             string `json:"name"`
	OutOfStock       bool   `json:"outOfStock"`
	CheckoutEligible bool   `json:"checkoutEligible"`
}

// WishlistEntryView is one wishlist entry in tool output.
type WishlistEntryView struct {
	ItemID       string `json:"itemId"`
	SelectedSize string `json:"selectedSize,omitempty"`
	Name         string `json:"name"`
	Price        string `json:"price"`
}

// StateView is the output of every tool: the full post-operation
// state, so agents never need a follow-up read.
type StateView struct {
	Backing  string              `json:"backing"`
	Cart     []CartLineView      `json:"cart"`
	Wishlist []WishlistEntryView `json:"wishlist"`
}

// Server holds the MCP tool handlers.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates the MCP tool surface over an engine.
func NewServer(eng *engine.Engine, logger *slog.Logger) *Server {
	return &Server{engine: eng, logger: logger}
}

// NewMCPServer creates an MCP server with cart and wishlist tools
// registered.
func (s *Server) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartsync",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart and wishlist operations. " +
				"Every tool returns the full post-operation state.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_get",
		Description: "Get the current cart and wishlist state.",
	}, s.mcpGetState)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_add_item",
		Description: "Add an item to the cart. Quantities above available stock are clamped.",
	}, s.mcpAddItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_update_quantity",
		Description: "Set the quantity of a cart line. The line must already be in the cart.",
	}, s.mcpUpdateQuantity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_remove_item",
		Description: "Remove a line from the cart. Removing an absent line succeeds.",
	}, s.mcpRemoveItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cart_clear",
		Description: "Remove every line from the cart.",
	}, s.mcpClearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wishlist_toggle",
		Description: "Add the product to the wishlist, or remove it if already present.",
	}, s.mcpToggleWishlist)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wishlist_move_to_cart",
		Description: "Move a wishlist entry into the cart.",
	}, s.mcpMoveToCart)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (s *Server) NewMCPHandler() http.Handler {
	server := s.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (s *Server) mcpGetState(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, *StateView, error) {
	if err := s.engine.Initialize(ctx); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpAddItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AddItemInput,
) (*mcp.CallToolResult, *StateView, error) {
	price, err := model.ParsePrice(input.UnitPrice)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid_input: %v", err)
	}

	item := model.LineItem{
		ItemID:          input.ItemID,
		SelectedSize:    input.SelectedSize,
		Quantity:        input.Quantity,
		UnitPrice:       price,
		Personalization: input.Personalization,
		AvailableStock:  input.AvailableStock,
		Snapshot: model.ItemSnapshot{
			Name:  input.Name,
			Image: input.Image,
		},
	}

	if err := s.engine.AddItem(ctx, item); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpUpdateQuantity(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input UpdateQuantityInput,
) (*mcp.CallToolResult, *StateView, error) {
	key := model.ItemKey{ItemID: input.ItemID, SelectedSize: input.SelectedSize}
	if err := s.engine.UpdateQuantity(ctx, key, input.Quantity); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpRemoveItem(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ItemRefInput,
) (*mcp.CallToolResult, *StateView, error) {
	key := model.ItemKey{ItemID: input.ItemID, SelectedSize: input.SelectedSize}
	if err := s.engine.RemoveItem(ctx, key); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpClearCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EmptyInput,
) (*mcp.CallToolResult, *StateView, error) {
	if err := s.engine.ClearCart(ctx); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpToggleWishlist(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ToggleWishlistInput,
) (*mcp.CallToolResult, *StateView, error) {
	price, err := model.ParsePrice(input.Price)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid_input: %v", err)
	}

	entry := model.WishlistEntry{
		ItemID:       input.ItemID,
		SelectedSize: input.SelectedSize,
		Snapshot: model.EntrySnapshot{
			Name:        input.Name,
			Price:       price,
			Image:       input.Image,
			Description: input.Description,
			Category:    input.Category,
		},
	}

	if err := s.engine.ToggleWishlist(ctx, entry); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

func (s *Server) mcpMoveToCart(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ItemRefInput,
) (*mcp.CallToolResult, *StateView, error) {
	key := model.ItemKey{ItemID: input.ItemID, SelectedSize: input.SelectedSize}
	if err := s.engine.MoveToCart(ctx, key); err != nil {
		return nil, nil, s.mcpError(err)
	}
	return nil, s.stateView(), nil
}

// stateView snapshots the engine into tool output.
func (s *Server) stateView() *StateView {
	state := s.engine.State()

	view := &StateView{
		Backing:  string(state.Backing),
		Cart:     make([]CartLineView, 0, len(state.Cart)),
		Wishlist: make([]WishlistEntryView, 0, len(state.Wishlist)),
	}
	for _, line := range state.Cart {
		view.Cart = append(view.Cart, CartLineView{
			ItemID:           line.ItemID,
			SelectedSize:     line.SelectedSize,
			Quantity:         line.Quantity,
			UnitPrice:        model.FormatCents(line.UnitPrice),
			Name:             line.Snapshot.Name,
			OutOfStock:       line.OutOfStock(),
			CheckoutEligible: line.CheckoutEligible(),
		})
	}
	for _, entry := range state.Wishlist {
		view.Wishlist = append(view.Wishlist, WishlistEntryView{
			ItemID:       entry.ItemID,
			SelectedSize: entry.SelectedSize,
			Name:         entry.Snapshot.Name,
			Price:        model.FormatCents(entry.Snapshot.Price),
		})
	}
	return view
}

// mcpError converts engine errors to MCP-friendly errors.
func (s *Server) mcpError(err error) error {
	var typed *model.Error
	if errors.As(err, &typed) {
		return fmt.Errorf("%s: %s", typed.Code, typed.Message)
	}
	// Don't leak internal error details
	s.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
