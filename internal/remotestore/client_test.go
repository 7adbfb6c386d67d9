package remotestore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"cartsync/internal/model"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL:    server.URL,
		ClientID:   "dev-1234",
		Tokens:     StaticToken("tok-abc"),
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return client, server
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Tokens: StaticToken("t")}); err == nil {
		t.Error("missing base URL should be rejected")
	}
	if _, err := New(Config{BaseURL: "https://shop.example"}); err == nil {
		t.Error("missing token source should be rejected")
	}
}

func TestFetchCart_AttachesHeaders(t *testing.T) {
	var gotAuth, gotAgent string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/cart" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("Storefront-Agent")
		json.NewEncoder(w).Encode(cartResponse{Success: true, CartItems: []wireLineItem{
			{ItemID: "p1", Quantity: 2, UnitPrice: "45.00", AvailableStock: 9,
				Snapshot: wireSnapshot{Name: "Linen Shirt"}},
		}})
	}))

	items, err := client.FetchCart(context.Background())
	if err != nil {
		t.Fatalf("FetchCart() error: %v", err)
	}

	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q, want bearer credential", gotAuth)
	}
	if gotAgent == "" {
		t.Error("Storefront-Agent header missing")
	}

	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].UnitPrice != 4500 {
		t.Errorf("UnitPrice = %d, want 4500 minor units", items[0].UnitPrice)
	}
	if items[0].AvailableStock != 9 {
		t.Errorf("AvailableStock = %d, want 9", items[0].AvailableStock)
	}
}

func TestAddItem_SendsWireShape(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cart/add" {
			t.Errorf("path = %s, want /cart/add", r.URL.Path)
		}
		var got wireLineItem
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if got.UnitPrice != "45.00" {
			t.Errorf("UnitPrice on wire = %q, want decimal string", got.UnitPrice)
		}
		json.NewEncoder(w).Encode(cartResponse{Success: true, CartItems: []wireLineItem{got}})
	}))

	_, err := client.AddItem(context.Background(), model.LineItem{
		ItemID: "p1", Quantity: 1, UnitPrice: 4500, AvailableStock: 5,
		Snapshot: model.ItemSnapshot{Name: "Linen Shirt"},
	})
	if err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
}

func TestUpdateQuantity_KeyInPath(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if r.URL.Path != "/cart/item/p1:M" {
			t.Errorf("path = %q, want /cart/item/p1:M", r.URL.Path)
		}
		var body updateQuantityRequest
		json.NewDecoder(r.Body).Decode(&body)
		if body.Quantity != 5 {
			t.Errorf("quantity = %d, want 5", body.Quantity)
		}
		json.NewEncoder(w).Encode(cartResponse{Success: true})
	}))

	_, err := client.UpdateQuantity(context.Background(),
		model.ItemKey{ItemID: "p1", SelectedSize: "M"}, 5)
	if err != nil {
		t.Fatalf("UpdateQuantity() error: %v", err)
	}
}

func TestRemoveWishlistEntry_SizeQuery(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wishlist/remove/p1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("selectedSize"); got != "M" {
			t.Errorf("selectedSize = %q, want M", got)
		}
		json.NewEncoder(w).Encode(wishlistResponse{Success: true})
	}))

	_, err := client.RemoveWishlistEntry(context.Background(),
		model.ItemKey{ItemID: "p1", SelectedSize: "M"})
	if err != nil {
		t.Fatalf("RemoveWishlistEntry() error: %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"token expired"}`, model.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, `{"message":"no"}`, model.ErrUnauthorized},
		{"not found is divergence", http.StatusNotFound, `{"message":"item deleted"}`, model.ErrConflict},
		{"conflict", http.StatusConflict, `{"message":"stale"}`, model.ErrConflict},
		{"bad request", http.StatusBadRequest, `{"message":"bad qty"}`, model.ErrInvalidInput},
		{"server error", http.StatusInternalServerError, `{"message":"boom"}`, model.ErrNetwork},
		{"rate limited", http.StatusTooManyRequests, ``, model.ErrNetwork},
		{"malformed error body", http.StatusBadGateway, `<html>`, model.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			_, err := client.FetchCart(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("error %v should wrap %v", err, tt.sentinel)
			}
		})
	}
}

func TestMalformedSuccessBodyIsFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": tru`))
	}))

	_, err := client.FetchCart(context.Background())
	if !errors.Is(err, model.ErrNetwork) {
		t.Errorf("malformed body should map to network failure, got %v", err)
	}
}

func TestSuccessFalseEnvelopeIsFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cartResponse{Success: false, Message: "cart locked"})
	}))

	_, err := client.FetchCart(context.Background())
	if err == nil {
		t.Fatal("success:false must surface as failure")
	}
}

func TestMissingCredentialIsProgrammerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the backend without a credential")
	}))
	defer server.Close()

	client, err := New(Config{
		BaseURL:    server.URL,
		Tokens:     StaticToken(""),
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = client.FetchCart(context.Background())
	if !errors.Is(err, model.ErrInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestAPIVersionGate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"absent header passes", "", false},
		{"current version passes", "1.4.0", false},
		{"v-prefixed passes", "v2.0.0", false},
		{"unparsable passes", "beta", false},
		{"predates contract", "0.9.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("X-Api-Version", tt.header)
				}
				json.NewEncoder(w).Encode(cartResponse{Success: true})
			}))

			_, err := client.FetchCart(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("FetchCart() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
