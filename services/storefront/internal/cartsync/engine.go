// Package cartsync keeps the storefront cart consistent across the local
// persistence layer and the remote cart backend.
//
// An Engine owns the cart of one device. Every public operation holds the
// engine mutex for its full duration, so operations on one cart never
// interleave. Remote failures never escape: they are logged, counted and
// turned into local state (pending adds, pending removals) that the next
// SyncCart retries.
package cartsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/gateway"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/store"
)

// Remote is the cart backend. *gateway.Gateway satisfies it.
type Remote interface {
	Add(ctx context.Context, userID, productID string, quantity int) (string, error)
	ListByUser(ctx context.Context, userID string) (gateway.RemoteCart, error)
	ListByRowIDs(ctx context.Context, rowIDs []string) (gateway.RemoteCart, error)
	Remove(ctx context.Context, rowID string) error
}

// EventPublisher announces merges and syncs. *event.Producer satisfies it.
type EventPublisher interface {
	PublishCartMerged(ctx context.Context, userID string, merged, failed int) error
	PublishCartSynced(ctx context.Context, userID, source string, summary domain.Summary) error
}

// State is the presentation state of a cart.
type State struct {
	Scope   domain.Scope      `json:"-"`
	Lines   []domain.CartLine `json:"lines"`
	Total   decimal.Decimal   `json:"total"`
	Count   int               `json:"item_count"`
	Pending int               `json:"pending_operations"`
}

// Listener receives the new state after every mutation.
type Listener func(State)

// Engine is the cart reconciliation engine of one device.
type Engine struct {
	mu       sync.Mutex
	remote   Remote
	store    *store.Persistence
	events   EventPublisher
	logger   *slog.Logger
	scope    domain.Scope
	snapshot domain.Snapshot

	// pendingRemovals mirrors the length of the persisted pending-removal list.
	pendingRemovals int

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewEngine creates an engine in guest scope with an empty cart. Call
// SwitchScope to load the persisted cart of the active scope. events may be
// nil.
func NewEngine(remote Remote, persistence *store.Persistence, events EventPublisher, log *slog.Logger) *Engine {
	return &Engine{
		remote:    remote,
		store:     persistence,
		events:    events,
		logger:    log,
		scope:     domain.GuestScope(),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn to be called synchronously with the new state after
// every mutation. The returned function removes the listener.
func (e *Engine) Subscribe(fn Listener) func() {
	e.listenersMu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.listenersMu.Unlock()

	return func() {
		e.listenersMu.Lock()
		delete(e.listeners, id)
		e.listenersMu.Unlock()
	}
}

// Scope returns the active scope.
func (e *Engine) Scope() domain.Scope {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scope
}

// State returns a copy of the current cart and its summary.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// AddItem adds quantity units of product to the cart. A quantity below 1
// adds one unit. The only error returned is for a product without an id.
func (e *Engine) AddItem(ctx context.Context, product domain.Product, quantity int) (State, error) {
	line, err := domain.NormalizeProduct(product, quantity)
	if err != nil {
		return e.State(), err
	}

	e.mu.Lock()
	if e.scope.IsGuest() {
		line.SyncState = domain.SyncLocal
	} else {
		rowID, err := e.remote.Add(ctx, e.scope.UserID, line.ProductID, line.Quantity)
		if err != nil {
			e.remoteFailed(ctx, "add", err, slog.String("product_id", line.ProductID))
			line.SyncState = domain.SyncPendingAdd
			line.PendingQuantity = line.Quantity
		} else {
			line.SyncState = domain.SyncConfirmed
			line.ServerRowID = rowID
			e.recordRowIDs(ctx, rowID)
		}
	}
	e.snapshot.Add(line)
	e.saveSnapshotLocked(ctx)
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st, nil
}

// RemoveItem deletes the line for productID. In user scope the backend row
// is removed too; a failed remote removal is queued for the next sync.
func (e *Engine) RemoveItem(ctx context.Context, productID string) State {
	e.mu.Lock()
	e.removeLocked(ctx, productID)
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st
}

// UpdateQuantity replaces the quantity of the line for productID. A quantity
// below 1 removes the line. The backend is not called: it has no quantity
// update operation.
func (e *Engine) UpdateQuantity(ctx context.Context, productID string, quantity int) State {
	e.mu.Lock()
	if quantity < 1 {
		e.removeLocked(ctx, productID)
	} else if e.snapshot.SetQuantity(productID, quantity) {
		e.saveSnapshotLocked(ctx)
	}
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st
}

// ClearCart empties the cart. In user scope every known backend row is
// removed on a best-effort basis; failures are queued for the next sync.
func (e *Engine) ClearCart(ctx context.Context) State {
	e.mu.Lock()
	if !e.scope.IsGuest() {
		uid := e.scope.UserID
		ids := e.readIDs(ctx, store.RowIDsKey(uid))
		for _, l := range e.snapshot.Lines {
			for _, id := range l.RowIDs() {
				ids = appendUnique(ids, id)
			}
		}

		var failed []string
		for _, id := range ids {
			if err := e.removeRemote(ctx, id); err != nil {
				failed = append(failed, id)
			}
		}
		if len(failed) > 0 {
			pending := e.readIDs(ctx, store.PendingRemovalsKey(uid))
			for _, id := range failed {
				pending = appendUnique(pending, id)
			}
			e.writePendingRemovals(ctx, pending)
		}
		e.store.Write(ctx, store.RowIDsKey(uid), []string{})
	}
	e.snapshot = domain.Snapshot{Lines: []domain.CartLine{}}
	e.saveSnapshotLocked(ctx)
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st
}

// SyncCart refreshes the cart of the active scope. See reconcile.go.
func (e *Engine) SyncCart(ctx context.Context) State {
	e.mu.Lock()
	e.syncLocked(ctx)
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st
}

// SwitchScope makes scope the active scope. Entering a user scope while the
// guest cart holds lines merges them into the user's cart first. The cart of
// the new scope is then synced.
func (e *Engine) SwitchScope(ctx context.Context, scope domain.Scope) State {
	e.mu.Lock()
	from := e.scope
	e.scope = scope
	e.snapshot = e.loadSnapshotLocked(ctx)
	e.pendingRemovals = 0
	if !scope.IsGuest() {
		e.pendingRemovals = len(e.readIDs(ctx, store.PendingRemovalsKey(scope.UserID)))
		e.mergeLocked(ctx)
	}
	e.syncLocked(ctx)
	st := e.stateLocked()
	e.mu.Unlock()

	logger.WithContext(ctx, e.logger).InfoContext(ctx, "cart scope switched",
		slog.String("from", from.String()),
		slog.String("to", scope.String()),
		slog.Int("lines", len(st.Lines)),
	)
	e.notify(st)
	return st
}

// MergeGuestIntoUser pushes the guest cart into the active user's backend
// cart and syncs. Only lines the backend accepted leave the guest cart. It
// does nothing in guest scope.
func (e *Engine) MergeGuestIntoUser(ctx context.Context) State {
	e.mu.Lock()
	if e.scope.IsGuest() {
		st := e.stateLocked()
		e.mu.Unlock()
		return st
	}
	e.mergeLocked(ctx)
	e.syncLocked(ctx)
	st := e.stateLocked()
	e.mu.Unlock()

	e.notify(st)
	return st
}

// removeLocked drops the line for productID. In user scope every backend
// row folded into the line is removed; failed removals are queued.
func (e *Engine) removeLocked(ctx context.Context, productID string) {
	line, ok := e.snapshot.Line(productID)
	if !ok {
		return
	}
	if ids := line.RowIDs(); !e.scope.IsGuest() && len(ids) > 0 {
		uid := e.scope.UserID
		var removed, failed []string
		for _, id := range ids {
			if err := e.removeRemote(ctx, id); err != nil {
				failed = append(failed, id)
			} else {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			e.forgetRowIDs(ctx, removed...)
		}
		if len(failed) > 0 {
			pending := e.readIDs(ctx, store.PendingRemovalsKey(uid))
			for _, id := range failed {
				pending = appendUnique(pending, id)
			}
			e.writePendingRemovals(ctx, pending)
		}
	}
	e.snapshot.Remove(productID)
	e.saveSnapshotLocked(ctx)
}

// removeRemote removes a backend row. A row the backend no longer knows
// counts as removed.
func (e *Engine) removeRemote(ctx context.Context, rowID string) error {
	err := e.remote.Remove(ctx, rowID)
	if err == nil || errors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	e.remoteFailed(ctx, "remove", err, slog.String("row_id", rowID))
	return err
}

func (e *Engine) remoteFailed(ctx context.Context, op string, err error, attrs ...slog.Attr) {
	remoteFailuresTotal.WithLabelValues(op).Inc()
	args := []any{slog.String("op", op), slog.String("scope", e.scope.String()), slog.String("error", err.Error())}
	for _, a := range attrs {
		args = append(args, a)
	}
	logger.WithContext(ctx, e.logger).WarnContext(ctx, "cart backend call failed", args...)
}

func (e *Engine) stateLocked() State {
	snap := e.snapshot.Clone()
	sum := snap.Summary()
	return State{
		Scope:   e.scope,
		Lines:   snap.Lines,
		Total:   sum.Total,
		Count:   sum.ItemCount,
		Pending: len(snap.Pending()) + e.pendingRemovals,
	}
}

func (e *Engine) notify(st State) {
	e.listenersMu.Lock()
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.listenersMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

func (e *Engine) loadSnapshotLocked(ctx context.Context) domain.Snapshot {
	snap := domain.Snapshot{Lines: []domain.CartLine{}}
	e.store.Read(ctx, store.SnapshotKey(e.scope), &snap)
	return snap
}

func (e *Engine) saveSnapshotLocked(ctx context.Context) {
	if e.snapshot.Lines == nil {
		e.snapshot.Lines = []domain.CartLine{}
	}
	e.store.Write(ctx, store.SnapshotKey(e.scope), e.snapshot)
}

func (e *Engine) writePendingRemovals(ctx context.Context, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	e.store.Write(ctx, store.PendingRemovalsKey(e.scope.UserID), ids)
	e.pendingRemovals = len(ids)
}

func (e *Engine) readIDs(ctx context.Context, key string) []string {
	var ids []string
	e.store.Read(ctx, key, &ids)
	return ids
}

// recordRowIDs appends ids to the user's row-id registry.
func (e *Engine) recordRowIDs(ctx context.Context, ids ...string) {
	key := store.RowIDsKey(e.scope.UserID)
	registry := e.readIDs(ctx, key)
	changed := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		before := len(registry)
		registry = appendUnique(registry, id)
		changed = changed || len(registry) != before
	}
	if changed {
		e.store.Write(ctx, key, registry)
	}
}

// forgetRowIDs prunes ids from the user's row-id registry.
func (e *Engine) forgetRowIDs(ctx context.Context, ids ...string) {
	key := store.RowIDsKey(e.scope.UserID)
	registry := e.readIDs(ctx, key)
	kept := without(registry, ids...)
	if len(kept) != len(registry) {
		e.store.Write(ctx, key, kept)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func without(ids []string, drop ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !contains(drop, id) {
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}
