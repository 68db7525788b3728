// Package gateway talks to the remote cart backend.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httpclient"
	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
)

const serviceName = "cart-backend"

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Gateway issues cart operations against the backend REST API.
type Gateway struct {
	baseURL string
	client  HTTPDoer
	logger  *slog.Logger
}

// New creates a Gateway for the backend rooted at baseURL.
func New(baseURL string, client HTTPDoer, logger *slog.Logger) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

type addRequest struct {
	ProductID any `json:"product_id"`
	Quantity  int `json:"quantity"`
	UserID    any `json:"user_id,omitempty"`
}

// Add creates a cart row for productID under userID and returns the row id
// the backend assigned. The row id is empty when the backend did not report
// one. Adds are not idempotent and are sent exactly once.
func (g *Gateway) Add(ctx context.Context, userID, productID string, quantity int) (string, error) {
	payload := addRequest{
		ProductID: wireID(productID),
		Quantity:  quantity,
	}
	if userID != "" {
		payload.UserID = wireID(userID)
	}

	body, err := g.post(ctx, "/v1/cart/add", payload, false)
	if err != nil {
		return "", fmt.Errorf("add product %s: %w", productID, err)
	}

	rowID, err := createdRowID(body)
	if err != nil {
		return "", fmt.Errorf("decode add response: %w", err)
	}

	g.logger.DebugContext(ctx, "cart row added",
		slog.String("product_id", productID),
		slog.String("row_id", rowID),
		slog.Int("quantity", quantity),
	)
	return rowID, nil
}

// ListByUser fetches the cart of userID.
func (g *Gateway) ListByUser(ctx context.Context, userID string) (RemoteCart, error) {
	body, err := g.post(ctx, "/v1/cart-items", map[string]any{"user_id": wireID(userID)}, true)
	if err != nil {
		return RemoteCart{}, fmt.Errorf("list cart of user %s: %w", userID, err)
	}
	return NormalizeCart(body)
}

// ListByRowIDs fetches the cart rows with the given ids.
func (g *Gateway) ListByRowIDs(ctx context.Context, rowIDs []string) (RemoteCart, error) {
	csv := strings.Join(rowIDs, ",")
	body, err := g.post(ctx, "/v1/cart-items", map[string]any{"cart_item_ids": csv}, true)
	if err != nil {
		return RemoteCart{}, fmt.Errorf("list cart rows %s: %w", csv, err)
	}
	return NormalizeCart(body)
}

// Remove deletes the cart row rowID.
func (g *Gateway) Remove(ctx context.Context, rowID string) error {
	if _, err := g.post(ctx, "/v1/cart-delete", map[string]any{"cart_item_id": wireID(rowID)}, true); err != nil {
		return fmt.Errorf("remove cart row %s: %w", rowID, err)
	}
	return nil
}

// post sends payload as JSON and returns the body of a 2xx response.
// Replayable requests carry an idempotency key so the client may retry them.
func (g *Gateway) post(ctx context.Context, path string, payload any, replayable bool) ([]byte, error) {
	header := http.Header{}
	if token := TokenFromContext(ctx); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if replayable {
		header.Set(httpclient.IdempotencyKeyHeader, uuid.NewString())
	}

	req, err := httpclient.NewJSONRequest(ctx, g.baseURL+path, payload, header)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return body, nil
}

// createdRowID reads the new row id from data.id, falling back to id.
func createdRowID(body []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var resp map[string]any
	if err := dec.Decode(&resp); err != nil {
		return "", err
	}
	if data, ok := resp["data"].(map[string]any); ok {
		if id := domain.FlexString(data["id"]); id != "" {
			return id, nil
		}
	}
	return domain.FlexString(resp["id"]), nil
}

// wireID sends numeric-looking identifiers as JSON numbers, which is what
// the backend expects, and anything else as a string.
func wireID(id string) any {
	if id == "" {
		return id
	}
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return json.Number(id)
	}
	return id
}
