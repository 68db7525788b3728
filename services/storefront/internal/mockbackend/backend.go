// Package mockbackend is an in-memory stand-in for the remote cart backend.
// It serves the same three endpoints with sequential row ids and is used for
// local development and as the fake server in tests.
package mockbackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httputil"
)

// Product is a catalog entry the backend knows prices for.
type Product struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

// DefaultCatalog is the seeded catalog.
func DefaultCatalog() []Product {
	return []Product{
		{ID: 1, Name: "Toor Dal / kandipappu", Price: decimal.NewFromInt(110), Image: "/images/1.jpeg"},
		{ID: 2, Name: "Urad Gola White / Gundu Minapappu", Price: decimal.NewFromInt(110), Image: "/images/2.jpeg"},
		{ID: 3, Name: "Moong Dal (pesarapappu)", Price: decimal.NewFromInt(90), Image: "/images/3.jpeg"},
		{ID: 4, Name: "Sona Masoori Rice 5kg", Price: decimal.NewFromInt(420), Image: "/images/4.jpeg"},
		{ID: 5, Name: "Basmati Rice 1kg", Price: decimal.RequireFromString("135.50"), Image: "/images/5.jpeg"},
	}
}

// Endpoint names used by Fail and Calls.
const (
	EndpointAdd    = "add"
	EndpointList   = "list"
	EndpointDelete = "delete"
)

type row struct {
	ID        int64
	UserID    string
	ProductID int64
	Quantity  int
}

// Backend holds cart rows in memory.
type Backend struct {
	mu       sync.Mutex
	catalog  map[int64]Product
	rows     map[int64]*row
	nextID   int64
	failures map[string]int
	calls    map[string]int
	logger   *slog.Logger
}

// New creates a Backend over catalog.
func New(catalog []Product, logger *slog.Logger) *Backend {
	b := &Backend{
		catalog:  make(map[int64]Product, len(catalog)),
		rows:     make(map[int64]*row),
		nextID:   100,
		failures: make(map[string]int),
		calls:    make(map[string]int),
		logger:   logger,
	}
	for _, p := range catalog {
		b.catalog[p.ID] = p
	}
	return b
}

// Routes mounts the cart endpoints. The router is mounted under the base
// URL the storefront is configured with.
func (b *Backend) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
	r.Post("/v1/cart/add", b.guard(EndpointAdd, b.add))
	r.Post("/v1/cart-items", b.guard(EndpointList, b.list))
	r.Post("/v1/cart-delete", b.guard(EndpointDelete, b.remove))
	return r
}

// Fail makes the next n calls to endpoint answer 503.
func (b *Backend) Fail(endpoint string, n int) {
	b.mu.Lock()
	b.failures[endpoint] = n
	b.mu.Unlock()
}

// Calls returns how many requests endpoint has received.
func (b *Backend) Calls(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// Quantities returns the quantity per product id held for userID.
func (b *Backend) Quantities(userID string) map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]int)
	for _, r := range b.rows {
		if r.UserID == userID {
			out[strconv.FormatInt(r.ProductID, 10)] += r.Quantity
		}
	}
	return out
}

// RowCount returns the number of stored rows.
func (b *Backend) RowCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows)
}

func (b *Backend) guard(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[endpoint]++
		fail := b.failures[endpoint] > 0
		if fail {
			b.failures[endpoint]--
		}
		b.mu.Unlock()

		if fail {
			b.logger.Debug("mock cart backend injected failure", slog.String("endpoint", endpoint))
			writeMessage(w, http.StatusServiceUnavailable, "cart backend unavailable (mock)")
			return
		}
		next(w, r)
	}
}

type addRequest struct {
	ProductID json.Number `json:"product_id"`
	Quantity  int         `json:"quantity"`
	UserID    json.Number `json:"user_id"`
}

func (b *Backend) add(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	productID, err := req.ProductID.Int64()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "product_id must be numeric")
		return
	}
	if req.UserID == "" {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Quantity < 1 {
		writeMessage(w, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	b.mu.Lock()
	if _, ok := b.catalog[productID]; !ok {
		b.mu.Unlock()
		writeMessage(w, http.StatusNotFound, "product not found")
		return
	}
	userID := req.UserID.String()
	var target *row
	for _, existing := range b.rows {
		if existing.UserID == userID && existing.ProductID == productID {
			target = existing
			break
		}
	}
	if target == nil {
		b.nextID++
		target = &row{ID: b.nextID, UserID: userID, ProductID: productID}
		b.rows[target.ID] = target
	}
	target.Quantity += req.Quantity
	id := target.ID
	b.mu.Unlock()

	b.logger.Debug("mock cart backend row added",
		slog.Int64("row_id", id),
		slog.Int64("product_id", productID),
		slog.String("user_id", userID),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Item added to cart",
		"data":    map[string]any{"id": id},
	})
}

type listRequest struct {
	UserID      json.Number `json:"user_id"`
	CartItemIDs string      `json:"cart_item_ids"`
}

type listItem struct {
	ID        int64   `json:"id"`
	ProductID int64   `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wanted := make(map[int64]bool)
	for _, part := range strings.Split(req.CartItemIDs, ",") {
		if id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64); err == nil {
			wanted[id] = true
		}
	}
	if req.UserID == "" && len(wanted) == 0 {
		writeMessage(w, http.StatusBadRequest, "user_id or cart_item_ids is required")
		return
	}

	b.mu.Lock()
	items := make([]listItem, 0)
	total := decimal.Zero
	for _, rw := range b.rows {
		if req.UserID != "" && rw.UserID != req.UserID.String() {
			continue
		}
		if len(wanted) > 0 && !wanted[rw.ID] {
			continue
		}
		p := b.catalog[rw.ProductID]
		items = append(items, listItem{ID: rw.ID, ProductID: rw.ProductID, Quantity: rw.Quantity, Product: p})
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(rw.Quantity))))
	}
	b.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
	})
}

type deleteRequest struct {
	CartItemID json.Number `json:"cart_item_id"`
}

func (b *Backend) remove(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := req.CartItemID.Int64()
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "cart_item_id must be numeric")
		return
	}

	b.mu.Lock()
	_, ok := b.rows[id]
	delete(b.rows, id)
	b.mu.Unlock()

	if !ok {
		writeMessage(w, http.StatusNotFound, "cart item not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Item removed from cart"})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	httputil.WriteJSON(w, status, map[string]any{
		"success": status < 400,
		"message": message,
	})
}
