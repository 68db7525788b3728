package cartsync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/gateway"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/store"
)

var errBackendDown = fmt.Errorf("cart-backend server error (503): unavailable")

type fakeRow struct {
	id        string
	userID    string
	productID string
	qty       int
}

// fakeRemote is an in-memory cart backend with failure switches.
type fakeRemote struct {
	mu      sync.Mutex
	catalog map[string]decimal.Decimal
	rows    []*fakeRow
	nextID  int

	failAdds      int
	failProducts  map[string]bool
	failRemoves   int
	failListUser  bool
	failListRows  bool
	emptyUserList bool
	addCalls      int
	removeCalls   int
	listUserCalls int
	rowQueries    [][]string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		catalog: map[string]decimal.Decimal{
			"P1": decimal.RequireFromString("110.00"),
			"P2": decimal.RequireFromString("90.00"),
			"P3": decimal.RequireFromString("45.50"),
			"P4": decimal.RequireFromString("0.10"),
		},
		failProducts: make(map[string]bool),
		nextID:       100,
	}
}

func (f *fakeRemote) Add(_ context.Context, userID, productID string, quantity int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.addCalls++
	if f.failAdds > 0 {
		f.failAdds--
		return "", errBackendDown
	}
	if f.failProducts[productID] {
		return "", errBackendDown
	}
	for _, r := range f.rows {
		if r.userID == userID && r.productID == productID {
			r.qty += quantity
			return r.id, nil
		}
	}
	f.nextID++
	r := &fakeRow{id: strconv.Itoa(f.nextID), userID: userID, productID: productID, qty: quantity}
	f.rows = append(f.rows, r)
	return r.id, nil
}

// seedRow stores a new row for productID even when the user already has one,
// as backends without per-product merging do.
func (f *fakeRemote) seedRow(userID, productID string, quantity int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	r := &fakeRow{id: strconv.Itoa(f.nextID), userID: userID, productID: productID, qty: quantity}
	f.rows = append(f.rows, r)
	return r.id
}

func (f *fakeRemote) ListByUser(_ context.Context, userID string) (gateway.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listUserCalls++
	if f.failListUser {
		return gateway.RemoteCart{}, errBackendDown
	}
	if f.emptyUserList {
		return gateway.RemoteCart{}, nil
	}
	return f.listLocked(func(r *fakeRow) bool { return r.userID == userID }), nil
}

func (f *fakeRemote) ListByRowIDs(_ context.Context, rowIDs []string) (gateway.RemoteCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rowQueries = append(f.rowQueries, append([]string(nil), rowIDs...))
	if f.failListRows {
		return gateway.RemoteCart{}, errBackendDown
	}
	return f.listLocked(func(r *fakeRow) bool { return contains(rowIDs, r.id) }), nil
}

func (f *fakeRemote) Remove(_ context.Context, rowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeCalls++
	if f.failRemoves > 0 {
		f.failRemoves--
		return errBackendDown
	}
	for i, r := range f.rows {
		if r.id == rowID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return apperrors.NotFound("cart-backend", rowID)
}

func (f *fakeRemote) listLocked(keep func(*fakeRow) bool) gateway.RemoteCart {
	var cart gateway.RemoteCart
	for _, r := range f.rows {
		if !keep(r) {
			continue
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:   r.productID,
			ServerRowID: r.id,
			Name:        "Product " + r.productID,
			UnitPrice:   f.catalog[r.productID],
			Quantity:    r.qty,
			SyncState:   domain.SyncConfirmed,
		})
	}
	cart.Total = (&domain.Snapshot{Lines: cart.Lines}).Summary().Total
	return cart
}

func (f *fakeRemote) quantities(userID string) map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, r := range f.rows {
		if r.userID == userID {
			out[r.productID] += r.qty
		}
	}
	return out
}

// recordingPublisher records published events.
type recordingPublisher struct {
	mu      sync.Mutex
	merges  [][2]int
	sources []string
}

func (p *recordingPublisher) PublishCartMerged(_ context.Context, _ string, merged, failed int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.merges = append(p.merges, [2]int{merged, failed})
	return nil
}

func (p *recordingPublisher) PublishCartSynced(_ context.Context, _ string, source string, _ domain.Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, source)
	return nil
}

func (p *recordingPublisher) lastSource() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sources) == 0 {
		return ""
	}
	return p.sources[len(p.sources)-1]
}

type testEnv struct {
	engine *Engine
	remote *fakeRemote
	kv     *store.MemoryKV
	store  *store.Persistence
	events *recordingPublisher
}

func newTestEnv(t *testing.T, scope domain.Scope) *testEnv {
	t.Helper()
	env := &testEnv{
		remote: newFakeRemote(),
		kv:     store.NewMemoryKV(),
		events: &recordingPublisher{},
	}
	env.store = store.NewPersistence(env.kv, logger.Discard())
	env.engine = NewEngine(env.remote, env.store, env.events, logger.Discard())
	env.engine.SwitchScope(context.Background(), scope)
	return env
}

func (env *testEnv) add(t *testing.T, id string, qty int) State {
	t.Helper()
	price := env.remote.catalog[id]
	st, err := env.engine.AddItem(context.Background(), domain.Product{
		"id":    id,
		"name":  "Product " + id,
		"price": price.String(),
	}, qty)
	require.NoError(t, err)
	return st
}

func (env *testEnv) ids(key string) []string {
	var ids []string
	env.store.Read(context.Background(), key, &ids)
	return ids
}

func quantities(lines []domain.CartLine) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] = l.Quantity
	}
	return out
}
