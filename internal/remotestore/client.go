// Package remotestore is the thin client over the authoritative
// storefront backend for cart and wishlist CRUD, scoped to the
// authenticated shopper.
//
// Every call attaches the current bearer credential; invoking the
// client without one is a programmer error (the engine must not route
// writes here while the session is local-backed). Network or server
// failure surfaces as a typed error. The client never retries
// internally, retry policy belongs to the engine.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dunglas/httpsfv"
	"golang.org/x/mod/semver"

	"cartsync/internal/model"
	"cartsync/internal/transport"
)

// requestTimeout bounds every backend call. A hanging request would
// otherwise hold its key's write guard indefinitely.
const requestTimeout = 15 * time.Second

// minAPIVersion is the oldest backend API this client understands.
// Compared against the X-Api-Version response header when present.
const minAPIVersion = "v1.0.0"

// userAgent identifies this client to the backend. The CDN in front of
// it rate-limits requests without a User-Agent.
const userAgent = "cartsync/1.0"

// TokenSource supplies the current bearer credential. The engine
// installs one at login and revokes it at logout.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed-credential TokenSource, used by tests and the
// CLI surface.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// Config holds client configuration.
type Config struct {
	BaseURL  string
	ClientID string // device/session identifier, sent in Storefront-Agent
	Tokens   TokenSource

	// HTTPClient overrides the default browser-fingerprint client.
	// Tests point this at httptest servers.
	HTTPClient *http.Client
}

// Client implements the remote store over the backend REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokens      TokenSource
	agentHeader string
}

// New creates a remote store client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Browser TLS fingerprint avoids JA3-based rate limiting.
		// See internal/transport for rationale.
		httpClient = &http.Client{
			Timeout:   requestTimeout,
			Transport: transport.NewBrowserTransport(requestTimeout),
		}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:      cfg.Tokens,
		agentHeader: buildAgentHeader(cfg.ClientID),
	}, nil
}

// buildAgentHeader encodes the client identity as an RFC 8941
// dictionary, e.g. `client="cartsync/1.0";id="dev-1234"`.
func buildAgentHeader(clientID string) string {
	dict := httpsfv.NewDictionary()
	dict.Add("client", httpsfv.NewItem(userAgent))
	if clientID != "" {
		dict.Add("id", httpsfv.NewItem(clientID))
	}
	header, err := httpsfv.Marshal(dict)
	if err != nil {
		// Only reachable with invalid characters in clientID; fall
		// back to the bare client identity.
		return `client="` + userAgent + `"`
	}
	return header
}

// === Cart operations ===

// FetchCart retrieves the authoritative cart.
func (c *Client) FetchCart(ctx context.Context) ([]model.LineItem, error) {
	var resp cartResponse
	if err := c.doJSON(ctx, http.MethodGet, "/cart", nil, &resp, "cart fetch"); err != nil {
		return nil, err
	}
	return cartFromWire(resp.CartItems), nil
}

// AddItem adds a line to the remote cart and returns the refreshed
// cart, including updated stock snapshots.
func (c *Client) AddItem(ctx context.Context, item model.LineItem) ([]model.LineItem, error) {
	var resp cartResponse
	if err := c.doJSON(ctx, http.MethodPost, "/cart/add", lineItemToWire(item), &resp, "cart add"); err != nil {
		return nil, err
	}
	return cartFromWire(resp.CartItems), nil
}

// UpdateQuantity sets the quantity for one line.
func (c *Client) UpdateQuantity(ctx context.Context, key model.ItemKey, qty int) ([]model.LineItem, error) {
	path := "/cart/item/" + url.PathEscape(key.String())
	var resp cartResponse
	if err := c.doJSON(ctx, http.MethodPut, path, updateQuantityRequest{Quantity: qty}, &resp, "cart update"); err != nil {
		return nil, err
	}
	return cartFromWire(resp.CartItems), nil
}

// RemoveItem removes one line. The backend treats removing an absent
// key as success, matching the engine's idempotence contract.
func (c *Client) RemoveItem(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	path := "/cart/item/" + url.PathEscape(key.String())
	var resp cartResponse
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp, "cart remove"); err != nil {
		return nil, err
	}
	return cartFromWire(resp.CartItems), nil
}

// ClearCart empties the remote cart.
func (c *Client) ClearCart(ctx context.Context) error {
	var resp cartResponse
	return c.doJSON(ctx, http.MethodDelete, "/cart/clear", nil, &resp, "cart clear")
}

// === Wishlist operations ===

// FetchWishlist retrieves the authoritative wishlist.
func (c *Client) FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error) {
	var resp wishlistResponse
	if err := c.doJSON(ctx, http.MethodGet, "/wishlist", nil, &resp, "wishlist fetch"); err != nil {
		return nil, err
	}
	return wishlistFromWire(resp.WishlistItems), nil
}

// AddWishlistEntry saves an entry and returns the refreshed wishlist.
func (c *Client) AddWishlistEntry(ctx context.Context, entry model.WishlistEntry) ([]model.WishlistEntry, error) {
	var resp wishlistResponse
	if err := c.doJSON(ctx, http.MethodPost, "/wishlist/add", entryToWire(entry), &resp, "wishlist add"); err != nil {
		return nil, err
	}
	return wishlistFromWire(resp.WishlistItems), nil
}

// RemoveWishlistEntry removes an entry by identity.
func (c *Client) RemoveWishlistEntry(ctx context.Context, key model.ItemKey) ([]model.WishlistEntry, error) {
	path := "/wishlist/remove/" + url.PathEscape(key.ItemID)
	if key.SelectedSize != "" {
		path += "?selectedSize=" + url.QueryEscape(key.SelectedSize)
	}
	var resp wishlistResponse
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &resp, "wishlist remove"); err != nil {
		return nil, err
	}
	return wishlistFromWire(resp.WishlistItems), nil
}

// ClearWishlist empties the remote wishlist.
func (c *Client) ClearWishlist(ctx context.Context) error {
	var resp wishlistResponse
	return c.doJSON(ctx, http.MethodDelete, "/wishlist/clear", nil, &resp, "wishlist clear")
}

// MoveToCart moves a wishlist entry into the cart server-side and
// returns the refreshed cart.
func (c *Client) MoveToCart(ctx context.Context, key model.ItemKey) ([]model.LineItem, error) {
	path := "/wishlist/move-to-cart/" + url.PathEscape(key.ItemID)
	if key.SelectedSize != "" {
		path += "?selectedSize=" + url.QueryEscape(key.SelectedSize)
	}
	var resp cartResponse
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &resp, "move to cart"); err != nil {
		return nil, err
	}
	return cartFromWire(resp.CartItems), nil
}

// === Request plumbing ===

// doJSON executes one backend call: marshal body, attach credential
// and agent headers, map non-2xx and malformed bodies to typed errors.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any, op string) error {
	token := c.tokens.Token()
	if token == "" {
		// Programmer error: the engine must not route writes here
		// while the session is local-backed.
		return model.NewInternalError(errors.New("remote store invoked without credential"))
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return model.NewInternalError(fmt.Errorf("marshaling %s request: %w", op, err))
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("creating %s request: %w", op, err))
	}
	c.setHeaders(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewNetworkError(op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewNetworkError(op, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(op, resp.StatusCode, respBody)
	}

	if err := checkAPIVersion(resp.Header.Get("X-Api-Version")); err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return model.NewNetworkError(op, fmt.Errorf("malformed response body: %w", err))
	}

	// A 2xx with success:false should not happen per the contract, but
	// treat it as a failure rather than trusting the item payload.
	if env, ok := out.(interface{ failed() (bool, string) }); ok {
		if failed, msg := env.failed(); failed {
			return model.NewNetworkError(op, fmt.Errorf("backend reported failure: %s", msg))
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Storefront-Agent", c.agentHeader)
}

// parseErrorResponse maps a backend failure to the engine taxonomy.
// The body is parsed best-effort; a malformed error body still yields
// a typed error.
func parseErrorResponse(op string, statusCode int, body []byte) error {
	var backendErr errorResponse
	json.Unmarshal(body, &backendErr) // Best effort parse

	msg := backendErr.Message
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg == "" {
			msg = "backend rejected credential"
		}
		return model.NewUnauthorizedError(msg)
	case http.StatusNotFound:
		if msg == "" {
			msg = "item no longer exists on the server"
		}
		return model.NewConflictError(msg)
	case http.StatusConflict:
		if msg == "" {
			msg = "server state diverged"
		}
		return model.NewConflictError(msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError("request", msg)
	default:
		return model.NewNetworkError(op, fmt.Errorf("status %d: %s", statusCode, msg))
	}
}

// checkAPIVersion rejects responses from backends older than this
// client supports. Absent or unparsable headers pass: only a version
// that definitely predates the cart/wishlist contract is an error.
func checkAPIVersion(header string) error {
	if header == "" {
		return nil
	}
	v := header
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return nil
	}
	if semver.Compare(v, minAPIVersion) < 0 {
		return model.NewConflictError(fmt.Sprintf("backend API %s predates supported %s", header, minAPIVersion))
	}
	return nil
}

func (r *cartResponse) failed() (bool, string)     { return !r.Success, r.Message }
func (r *wishlistResponse) failed() (bool, string) { return !r.Success, r.Message }
