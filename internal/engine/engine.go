// Package engine implements the sync coordinator: the single façade
// consumer surfaces talk to. It owns the in-memory source of truth for
// cart and wishlist, chooses the local or remote store as backing
// depending on auth state, serializes concurrent mutations per line
// item, and emits lifecycle events.
//
// Mutations are write-through: the backing store confirms a write
// before in-memory state changes, so consumers never observe a
// quantity the store did not accept.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cartsync/internal/model"
	"cartsync/internal/notify"
)

// opTimeout bounds each backing-store write. A hanging request would
// otherwise hold its key's guard indefinitely; on expiry the guard is
// released and the caller sees a network error.
const opTimeout = 15 * time.Second

// loginTimeout bounds the whole login merge, which issues one backend
// call per local item.
const loginTimeout = 60 * time.Second

// BackingKind names the active persistence layer.
type BackingKind string

const (
	BackingLocal  BackingKind = "local"
	BackingRemote BackingKind = "remote"
)

// LocalStore is the device-local persistence contract.
type LocalStore interface {
	Load(ctx context.Context) (model.StoredState, error)
	Save(ctx context.Context, state model.StoredState) error
	Clear(ctx context.Context) error
}

// Backing abstracts cart/wishlist persistence so the engine can point
// at the local or the remote store without branching at every call
// site. Mutations return the refreshed collection, which is how stock
// snapshots propagate back into memory.
type Backing interface {
	FetchCart(ctx context.Context) ([]model.LineItem, error)
	AddItem(ctx context.Context, item model.LineItem) ([]model.LineItem, error)
	UpdateQuantity(ctx context.Context, key model.ItemKey, qty int) ([]model.LineItem, error)
	RemoveItem(ctx context.Context, key model.ItemKey) ([]model.LineItem, error)
	ClearCart(ctx context.Context) error
	FetchWishlist(ctx context.Context) ([]model.WishlistEntry, error)
	AddWishlistEntry(ctx context.Context, entry model.WishlistEntry) ([]model.WishlistEntry, error)
	RemoveWishlistEntry(ctx context.Context, key model.ItemKey) ([]model.WishlistEntry, error)
	ClearWishlist(ctx context.Context) error
	MoveToCart(ctx context.Context, key model.ItemKey) ([]model.LineItem, error)
}

// SyncState is a point-in-time copy of the engine's source of truth.
// Initialized is false until the first successful load from the active
// backing completes; consumers must not render empty-state before
// that, or a remote fetch in flight shows a flash of "cart is empty".
type SyncState struct {
	Backing     BackingKind
	Cart        []model.LineItem
	Wishlist    []model.WishlistEntry
	Initialized bool
	PendingKeys []model.ItemKey
}

// Credentials holds the current bearer token. The engine installs it
// at login and revokes it at logout; the remote store reads it per
// call, so one Credentials instance is shared between both.
type Credentials struct {
	mu    sync.RWMutex
	token string
}

// NewCredentials returns an empty credential holder.
func NewCredentials() *Credentials {
	return &Credentials{}
}

// Token implements remotestore.TokenSource.
func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Credentials) set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// pendingUpdate is a coalesced quantity update: while a write for the
// key is in flight, later requests overwrite qty and add a waiter, so
// exactly one follow-up write lands with the latest requested value.
type pendingUpdate struct {
	qty     int
	waiters []chan error
}

// keySlot guards one line item key. Its presence in the slots map
// means a write for the key is in flight; queued ops run FIFO after
// it, and a coalesced update always runs last.
type keySlot struct {
	queue   []func()
	pending *pendingUpdate
}

// Config wires an engine instance.
type Config struct {
	Local       LocalStore
	Remote      Backing
	Credentials *Credentials
	Emitter     *notify.Emitter
	Logger      *slog.Logger

	// WriteTimeout overrides the per-write deadline. Zero means the
	// default of 15s.
	WriteTimeout time.Duration
}

// Engine is the sync coordinator. One instance per session; it is
// self-contained so tests can run isolated engines side by side.
type Engine struct {
	local        LocalStore
	remote       Backing
	localBk      Backing
	creds        *Credentials
	emitter      *notify.Emitter
	logger       *slog.Logger
	writeTimeout time.Duration
	initOnce     singleflight.Group

	mu            sync.Mutex
	state         SyncState
	slots         map[model.ItemKey]*keySlot
	transitioning bool
	queuedOps     []func()
	subs          map[int]chan struct{}
	nextSub       int

	// idle is signalled whenever a key guard is released; transitions
	// wait on it until no write is in flight.
	idle *sync.Cond
}

// New creates an engine backed by the local store; call Initialize to
// hydrate before rendering.
func New(cfg Config) (*Engine, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credentials holder is required")
	}
	if cfg.Emitter == nil {
		cfg.Emitter = notify.NewEmitter()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = opTimeout
	}

	e := &Engine{
		local:        cfg.Local,
		remote:       cfg.Remote,
		localBk:      newLocalBacking(cfg.Local),
		creds:        cfg.Credentials,
		emitter:      cfg.Emitter,
		logger:       cfg.Logger,
		writeTimeout: cfg.WriteTimeout,
		state:        SyncState{Backing: BackingLocal},
		slots:        make(map[model.ItemKey]*keySlot),
		subs:         make(map[int]chan struct{}),
	}
	e.idle = sync.NewCond(&e.mu)
	return e, nil
}

// Notifications exposes the emitter for the rendering layer.
func (e *Engine) Notifications() *notify.Emitter {
	return e.emitter
}

// State returns a copy of the current sync state.
func (e *Engine) State() SyncState {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := SyncState{
		Backing:     e.state.Backing,
		Initialized: e.state.Initialized,
		Cart:        make([]model.LineItem, len(e.state.Cart)),
		Wishlist:    make([]model.WishlistEntry, len(e.state.Wishlist)),
	}
	copy(out.Cart, e.state.Cart)
	copy(out.Wishlist, e.state.Wishlist)
	for key := range e.slots {
		out.PendingKeys = append(out.PendingKeys, key)
	}
	return out
}

// Subscribe registers a change listener. Every consumer surface
// observes the same engine and re-renders on signal, never on a
// polling timer. The returned cancel must be called on unmount.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan struct{}, 1)
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
	return ch, cancel
}

// notifyChange signals subscribers without blocking; a listener that
// already has a pending signal coalesces.
func (e *Engine) notifyChange() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Initialize hydrates the in-memory state from the active backing.
// Idempotent and safe to call from every surface mount; concurrent
// calls collapse into a single in-flight load.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.state.Initialized {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	_, err, _ := e.initOnce.Do("hydrate", func() (any, error) {
		return nil, e.hydrate(ctx)
	})
	return err
}

func (e *Engine) hydrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	backing := e.activeBacking()

	cart, err := backing.FetchCart(ctx)
	if err != nil {
		e.emitter.Emit(notify.KindGeneral, notify.OutcomeError, "", "could not load your cart")
		return err
	}
	wishlist, err := backing.FetchWishlist(ctx)
	if err != nil {
		e.emitter.Emit(notify.KindGeneral, notify.OutcomeError, "", "could not load your wishlist")
		return err
	}

	e.mu.Lock()
	e.state.Cart = cart
	e.state.Wishlist = wishlist
	e.state.Initialized = true
	e.mu.Unlock()

	e.notifyChange()
	return nil
}

// activeBacking resolves the store for the current backing kind.
func (e *Engine) activeBacking() Backing {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Backing == BackingRemote {
		return e.remote
	}
	return e.localBk
}

// === Per-key serialization ===

// runKeyed executes op under the key's guard. If the engine is mid
// login/logout, the op is queued and replayed after the transition
// settles, against the new backing. The caller's ctx only bounds its
// wait: a detached in-flight write completes and applies regardless
// (fire-and-forget is tolerated, never a crash).
func (e *Engine) runKeyed(ctx context.Context, key model.ItemKey, op func() error) error {
	e.mu.Lock()
	if e.transitioning {
		ch := make(chan error, 1)
		e.queuedOps = append(e.queuedOps, func() {
			ch <- e.execKeyed(key, op)
		})
		e.mu.Unlock()
		return e.await(ctx, ch)
	}
	slot, busy := e.slots[key]
	if busy {
		ch := make(chan error, 1)
		slot.queue = append(slot.queue, func() { ch <- op() })
		e.mu.Unlock()
		return e.await(ctx, ch)
	}
	e.slots[key] = &keySlot{}
	e.mu.Unlock()

	err := op()
	e.finishKey(key)
	return err
}

// execKeyed is runKeyed without the transition check, used when
// draining the transition queue.
func (e *Engine) execKeyed(key model.ItemKey, op func() error) error {
	e.mu.Lock()
	slot, busy := e.slots[key]
	if busy {
		ch := make(chan error, 1)
		slot.queue = append(slot.queue, func() { ch <- op() })
		e.mu.Unlock()
		return <-ch
	}
	e.slots[key] = &keySlot{}
	e.mu.Unlock()

	err := op()
	e.finishKey(key)
	return err
}

// runUnkeyed executes a whole-collection op (a clear) with the same
// transition discipline as runKeyed: mid login/logout it queues and
// replays after the transition settles, against the new backing.
func (e *Engine) runUnkeyed(ctx context.Context, op func() error) error {
	e.mu.Lock()
	if e.transitioning {
		ch := make(chan error, 1)
		e.queuedOps = append(e.queuedOps, func() { ch <- op() })
		e.mu.Unlock()
		return e.await(ctx, ch)
	}
	e.mu.Unlock()
	return op()
}

// waitForIdle blocks until no key guard is held. Called with
// transitioning already set, so the slot map can only drain: new
// mutations queue behind the transition instead of taking guards.
func (e *Engine) waitForIdle() {
	e.mu.Lock()
	for len(e.slots) > 0 {
		e.idle.Wait()
	}
	e.mu.Unlock()
}

// finishKey drains work that queued behind the finished write: FIFO
// ops first, then the coalesced quantity update, then the guard is
// released.
func (e *Engine) finishKey(key model.ItemKey) {
	for {
		e.mu.Lock()
		slot := e.slots[key]
		var run func()
		switch {
		case len(slot.queue) > 0:
			run = slot.queue[0]
			slot.queue = slot.queue[1:]
		case slot.pending != nil:
			d := slot.pending
			slot.pending = nil
			run = func() {
				err := e.doUpdateQuantity(key, d.qty)
				for _, ch := range d.waiters {
					ch <- err
				}
			}
		default:
			delete(e.slots, key)
			e.idle.Broadcast()
			e.mu.Unlock()
			return
		}
		e.mu.Unlock()
		run()
	}
}

func (e *Engine) await(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		// The write still completes and applies; only this caller
		// stops waiting for it.
		return model.NewNetworkError("mutation", ctx.Err())
	}
}

// opContext detaches a write from its caller so navigating away never
// cancels it mid-flight, while the timeout still releases the guard.
func (e *Engine) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.writeTimeout)
}

// writeErr normalizes a backing failure: anything the store did not
// already type (a raw deadline, a driver error) surfaces as a network
// error, the one category whose contract is "state unchanged, retry".
func writeErr(op string, err error) error {
	var typed *model.Error
	if errors.As(err, &typed) {
		return err
	}
	return model.NewNetworkError(op, err)
}

// handleWriteError is the single place engine failures become
// user-visible. Conflicts additionally trigger a refresh from the
// remote store to resynchronize.
func (e *Engine) handleWriteError(kind notify.Kind, subject string, err error) {
	e.emitter.Emit(kind, notify.OutcomeError, subject, userMessage(err))
	if errors.Is(err, model.ErrConflict) {
		e.resyncFromRemote()
	}
}

func (e *Engine) resyncFromRemote() {
	e.mu.Lock()
	remoteBacked := e.state.Backing == BackingRemote
	e.mu.Unlock()
	if !remoteBacked {
		return
	}

	ctx, cancel := e.opContext()
	defer cancel()

	cart, err := e.remote.FetchCart(ctx)
	if err != nil {
		e.logger.Warn("resync: cart fetch failed", slog.String("error", err.Error()))
		return
	}
	wishlist, err := e.remote.FetchWishlist(ctx)
	if err != nil {
		e.logger.Warn("resync: wishlist fetch failed", slog.String("error", err.Error()))
		return
	}

	e.mu.Lock()
	e.state.Cart = cart
	e.state.Wishlist = wishlist
	e.mu.Unlock()
	e.notifyChange()
}

// userMessage extracts the displayable part of a typed error.
func userMessage(err error) string {
	var typed *model.Error
	if errors.As(err, &typed) {
		return typed.Message
	}
	return err.Error()
}

func (e *Engine) applyCart(items []model.LineItem) {
	e.mu.Lock()
	e.state.Cart = items
	e.mu.Unlock()
	e.notifyChange()
}

func (e *Engine) applyWishlist(items []model.WishlistEntry) {
	e.mu.Lock()
	e.state.Wishlist = items
	e.mu.Unlock()
	e.notifyChange()
}
