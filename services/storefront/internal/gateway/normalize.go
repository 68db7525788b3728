package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rajkumarkushi/sartree-ecommerce/services/storefront/internal/domain"
)

// RemoteCart is a cart listing returned by the cart backend.
type RemoteCart struct {
	Lines []domain.CartLine

	// Total is the total declared by the backend, or the sum of the lines
	// when the response carries none.
	Total decimal.Decimal

	// Declared reports whether Total came from the response.
	Declared bool
}

// NormalizeCart extracts the cart lines and total from a cart listing body.
// The backend answers in several envelopes:
//
//	{"cart": {"items": [...]}}
//	{"data": [...]}
//	{"data": {"cart": {"items": [...]}}}
//	[...]
//
// and item lists may be named items, cart_items or cartItems. Every returned
// line is marked confirmed. Entries without any product identifier, with a
// quantity below 1 or with a negative price are skipped.
func NormalizeCart(body []byte) (RemoteCart, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return RemoteCart{}, fmt.Errorf("decode cart listing: %w", err)
	}

	// levels holds every object from the envelope down to the cart.
	levels := []any{root}
	container := root
	if obj, ok := root.(map[string]any); ok {
		if c := firstPresent(obj, "cart", "data"); c != nil {
			container = c
			levels = append(levels, c)
		}
	}
	if obj, ok := container.(map[string]any); ok {
		if inner, ok := obj["cart"].(map[string]any); ok {
			container = inner
			levels = append(levels, inner)
		}
	}

	var rawItems []any
	switch c := container.(type) {
	case []any:
		rawItems = c
	case map[string]any:
		if items, ok := firstPresent(c, "items", "cart_items", "cartItems").([]any); ok {
			rawItems = items
		}
	}

	cart := RemoteCart{Lines: make([]domain.CartLine, 0, len(rawItems))}
	for _, raw := range rawItems {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		line, ok := normalizeItem(item)
		if !ok {
			continue
		}
		cart.Lines = append(cart.Lines, line)
	}

	if total, ok := declaredTotal(levels); ok {
		cart.Total = total
		cart.Declared = true
	} else {
		snap := domain.Snapshot{Lines: cart.Lines}
		cart.Total = snap.Summary().Total
	}

	return cart, nil
}

func normalizeItem(item map[string]any) (domain.CartLine, bool) {
	product, _ := item["product"].(map[string]any)

	productID := domain.FlexString(item["product_id"])
	if productID == "" && product != nil {
		productID = domain.FlexString(product["id"])
	}
	if productID == "" {
		productID = domain.FlexString(firstPresent(item, "productId", "id"))
	}
	if productID == "" {
		return domain.CartLine{}, false
	}

	name := ""
	price := decimal.Zero
	image := ""
	if product != nil {
		name = domain.FlexString(product["name"])
		if v, ok := product["price"]; ok && v != nil {
			price = domain.FlexDecimal(v)
		} else {
			price = domain.FlexDecimal(item["price"])
		}
		image = domain.FlexString(product["image"])
	} else {
		price = domain.FlexDecimal(item["price"])
	}
	if name == "" {
		name = domain.FlexString(item["name"])
	}
	if name == "" {
		name = "Product " + productID
	}
	if image == "" {
		image = domain.FlexString(item["image"])
	}

	quantity := domain.FlexInt(item["quantity"], 1)
	if quantity < 1 || price.IsNegative() {
		return domain.CartLine{}, false
	}

	return domain.CartLine{
		ProductID:   productID,
		ServerRowID: domain.FlexString(firstPresent(item, "id", "cart_item_id", "cartId")),
		Name:        name,
		UnitPrice:   price,
		ImageRef:    image,
		Quantity:    quantity,
		SyncState:   domain.SyncConfirmed,
	}, true
}

// declaredTotal returns the first total found walking from the envelope
// down to the cart.
func declaredTotal(levels []any) (decimal.Decimal, bool) {
	for _, level := range levels {
		obj, ok := level.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := obj["total"]; ok && v != nil {
			return domain.FlexDecimal(v), true
		}
	}
	return decimal.Zero, false
}

// firstPresent returns the value of the first key holding a non-nil value.
func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
