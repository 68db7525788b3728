package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httputil"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/middleware"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/validator"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/cartsync"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/gateway"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/session"
)

// Sessions runs cart operations against the engine of a device with a scope
// active. *session.Manager satisfies it.
type Sessions interface {
	Do(ctx context.Context, deviceID string, scope domain.Scope, op session.Op) (cartsync.State, error)
}

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions Sessions, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item to the cart.
// Product is any product-like object the storefront pages render; see
// domain.NormalizeProduct for the accepted field names.
type AddItemRequest struct {
	Product  domain.Product `json:"product" validate:"required"`
	Quantity int            `json:"quantity" validate:"omitempty,gte=1,lte=999"`
}

// UpdateQuantityRequest is the JSON request body for setting a line's
// quantity. Values below 1 remove the line.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,lte=999"`
}

// CartResponse is the cart as returned by every endpoint.
type CartResponse struct {
	Scope string `json:"scope"`
	cartsync.State
}

func newCartResponse(st cartsync.State) CartResponse {
	if st.Lines == nil {
		st.Lines = []domain.CartLine{}
	}
	return CartResponse{Scope: st.Scope.String(), State: st}
}

// --- Handlers ---

// GetCart handles GET /api/v1/storefront/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(_ context.Context, e *cartsync.Engine) (cartsync.State, error) {
		return e.State(), nil
	})
}

// AddItem handles POST /api/v1/storefront/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.run(w, r, func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error) {
		return e.AddItem(ctx, req.Product, req.Quantity)
	})
}

// UpdateItemQuantity handles PUT /api/v1/storefront/cart/items/{productId}
func (h *CartHandler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req UpdateQuantityRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.run(w, r, func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error) {
		if !hasLine(e.State(), productID) {
			return cartsync.State{}, apperrors.NotFound("cart line", productID)
		}
		return e.UpdateQuantity(ctx, productID, *req.Quantity), nil
	})
}

// RemoveItem handles DELETE /api/v1/storefront/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	h.run(w, r, func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error) {
		return e.RemoveItem(ctx, productID), nil
	})
}

// ClearCart handles DELETE /api/v1/storefront/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error) {
		return e.ClearCart(ctx), nil
	})
}

// SyncCart handles POST /api/v1/storefront/cart/sync
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error) {
		return e.SyncCart(ctx), nil
	})
}

// --- Helpers ---

// run executes op on the device's engine under the request's scope and
// writes the resulting cart. ctx carries the caller's bearer token for
// backend calls.
func (h *CartHandler) run(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, e *cartsync.Engine) (cartsync.State, error)) {
	ctx := r.Context()
	if token := middleware.TokenFromContext(ctx); token != "" {
		ctx = gateway.WithToken(ctx, token)
	}

	scope := domain.GuestScope()
	if userID := middleware.UserIDFromContext(ctx); userID != "" {
		scope = domain.UserScope(userID)
	}

	st, err := h.sessions.Do(ctx, deviceIDFromContext(ctx), scope, func(e *cartsync.Engine) (cartsync.State, error) {
		return op(ctx, e)
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.writeCart(w, st)
}

func hasLine(st cartsync.State, productID string) bool {
	for _, l := range st.Lines {
		if l.ProductID == productID {
			return true
		}
	}
	return false
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := validator.DecodeAndValidate(r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, h.logger)
	} else {
		httputil.WriteBadRequest(w, r, err)
	}
	return false
}

func (h *CartHandler) writeCart(w http.ResponseWriter, st cartsync.State) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newCartResponse(st)})
}
