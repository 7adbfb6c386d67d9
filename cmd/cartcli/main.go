// cartcli drives the cart sync engine from the terminal.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	cartcli list
//	cartcli add -item ID [-size S] [-qty N] -price P -stock N -name NAME
//	cartcli update -item ID [-size S] -qty N
//	cartcli remove -item ID [-size S]
//	cartcli clear
//	cartcli wishlist -item ID [-size S] -name NAME -price P
//	cartcli move -item ID [-size S]
//	cartcli login -token TOKEN
//	cartcli logout
//	cartcli serve [-addr :8081]
//
// Examples:
//
//	cartcli add -item 60 -size M -qty 2 -price 19.99 -stock 8 -name "Trail Jacket"
//	cartcli update -item 60 -size M -qty 3
//	cartcli login -token $(cat ~/.cartsync-token)
//	cartcli serve -addr :8081
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cartsync/internal/agent"
	"cartsync/internal/config"
	"cartsync/internal/engine"
	"cartsync/internal/localstore"
	"cartsync/internal/middleware"
	"cartsync/internal/model"
	"cartsync/internal/notify"
	"cartsync/internal/remotestore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "-h" || cmd == "-help" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if err := run(cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg.LogLevel)

	store, err := localstore.Open(cfg.LocalDBPath, logger)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	defer store.Close()

	creds := engine.NewCredentials()
	remote, err := remotestore.New(remotestore.Config{
		BaseURL:  cfg.BackendURL(),
		ClientID: cfg.Store.ClientID,
		Tokens:   creds,
	})
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Local:       store,
		Remote:      remote,
		Credentials: creds,
		Emitter:     notify.NewEmitter(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("loading state: %w", err)
	}

	switch cmd {
	case "list":
		return runList(eng)
	case "add":
		return runAdd(ctx, eng, args)
	case "update":
		return runUpdate(ctx, eng, args)
	case "remove":
		return runRemove(ctx, eng, args)
	case "clear":
		return runClear(ctx, eng)
	case "wishlist":
		return runWishlist(ctx, eng, args)
	case "move":
		return runMove(ctx, eng, args)
	case "login":
		return runLogin(ctx, eng, args)
	case "logout":
		return runLogout(ctx, eng)
	case "serve":
		return runServe(eng, logger, args)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runList(eng *engine.Engine) error {
	return printState(eng)
}

func runAdd(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	itemID := fs.String("item", "", "product ID (required)")
	size := fs.String("size", "", "size variant")
	qty := fs.Int("qty", 1, "quantity")
	price := fs.String("price", "", "unit price, e.g. 19.99 (required)")
	stockCount := fs.Int("stock", 0, "units in stock (required)")
	name := fs.String("name", "", "display name (required)")
	image := fs.String("image", "", "image URL")
	personalization := fs.String("personalization", "", "personalization text")
	fs.Parse(args)

	cents, err := model.ParsePrice(*price)
	if err != nil {
		return fmt.Errorf("invalid -price: %w", err)
	}

	item := model.LineItem{
		ItemID:          *itemID,
		SelectedSize:    *size,
		Quantity:        *qty,
		UnitPrice:       cents,
		Personalization: *personalization,
		AvailableStock:  *stockCount,
		Snapshot: model.ItemSnapshot{
			Name:  *name,
			Image: *image,
		},
	}

	if err := eng.AddItem(ctx, item); err != nil {
		return err
	}
	return printState(eng)
}

func runUpdate(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	itemID := fs.String("item", "", "product ID (required)")
	size := fs.String("size", "", "size variant")
	qty := fs.Int("qty", 0, "new quantity (required)")
	fs.Parse(args)

	key := model.ItemKey{ItemID: *itemID, SelectedSize: *size}
	if err := eng.UpdateQuantity(ctx, key, *qty); err != nil {
		return err
	}
	return printState(eng)
}

func runRemove(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	itemID := fs.String("item", "", "product ID (required)")
	size := fs.String("size", "", "size variant")
	fs.Parse(args)

	key := model.ItemKey{ItemID: *itemID, SelectedSize: *size}
	if err := eng.RemoveItem(ctx, key); err != nil {
		return err
	}
	return printState(eng)
}

func runClear(ctx context.Context, eng *engine.Engine) error {
	if err := eng.ClearCart(ctx); err != nil {
		return err
	}
	return printState(eng)
}

func runWishlist(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("wishlist", flag.ExitOnError)
	itemID := fs.String("item", "", "product ID (required)")
	size := fs.String("size", "", "size variant")
	name := fs.String("name", "", "display name (required)")
	price := fs.String("price", "", "price, e.g. 19.99 (required)")
	image := fs.String("image", "", "image URL")
	fs.Parse(args)

	cents, err := model.ParsePrice(*price)
	if err != nil {
		return fmt.Errorf("invalid -price: %w", err)
	}

	entry := model.WishlistEntry{
		ItemID:       *itemID,
		SelectedSize: *size,
		Snapshot: model.EntrySnapshot{
			Name:  *name,
			Price: cents,
			Image: *image,
		},
	}

	if err := eng.ToggleWishlist(ctx, entry); err != nil {
		return err
	}
	return printState(eng)
}

func runMove(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("move", flag.ExitOnError)
	itemID := fs.String("item", "", "product ID (required)")
	size := fs.String("size", "", "size variant")
	fs.Parse(args)

	key := model.ItemKey{ItemID: *itemID, SelectedSize: *size}
	if err := eng.MoveToCart(ctx, key); err != nil {
		return err
	}
	return printState(eng)
}

func runLogin(ctx context.Context, eng *engine.Engine, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	token := fs.String("token", "", "bearer token (required)")
	fs.Parse(args)

	if err := eng.Login(ctx, *token); err != nil {
		return err
	}
	return printState(eng)
}

func runLogout(ctx context.Context, eng *engine.Engine) error {
	if err := eng.Logout(ctx); err != nil {
		return err
	}
	return printState(eng)
}

// runServe mounts the MCP tool surface over HTTP and blocks until
// interrupted.
func runServe(eng *engine.Engine, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8081", "listen address")
	fs.Parse(args)

	mux := http.NewServeMux()
	mux.Handle("/mcp", agent.NewServer(eng, logger).NewMCPHandler())

	handler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.Logging(logger),
	)(mux)

	server := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp server listening", slog.String("addr", *addr))
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// printState writes the current state as indented JSON to stdout.
func printState(eng *engine.Engine) error {
	state := eng.State()

	out := struct {
		Backing  string                `json:"backing"`
		Cart     []model.LineItem      `json:"cart"`
		Wishlist []model.WishlistEntry `json:"wishlist"`
	}{
		Backing:  string(state.Backing),
		Cart:     state.Cart,
		Wishlist: state.Wishlist,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// initLogger creates a structured JSON logger at the configured level.
func initLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `cartcli - storefront cart and wishlist tool

Usage:
  cartcli <command> [options]

Commands:
  list      Print the current cart and wishlist
  add       Add an item to the cart
  update    Set the quantity of a cart line
  remove    Remove a cart line
  clear     Empty the cart
  wishlist  Toggle a product on the wishlist
  move      Move a wishlist entry into the cart
  login     Sign in and merge local state into the account
  logout    Sign out and revert to the on-device store
  serve     Serve the MCP tool surface over HTTP

Configuration comes from the environment or CONFIG_FILE; see
internal/config. STORE_ID, STORE_BACKEND_URL, and STORE_CLIENT_ID are
required.

Examples:
  cartcli add -item 60 -size M -qty 2 -price 19.99 -stock 8 -name "Trail Jacket"
  cartcli update -item 60 -size M -qty 3
  cartcli login -token "$TOKEN"
  cartcli serve -addr :8081
`)
}
