package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
)

// Product is a product-like object as sent by the storefront pages. Listing,
// detail and slider pages each use their own field names, so values are
// looked up through synonyms.
type Product map[string]any

var (
	productIDKeys    = []string{"id", "product_id", "_id"}
	productNameKeys  = []string{"name", "title"}
	productPriceKeys = []string{"price", "finalPrice", "sale_price"}
	productImageKeys = []string{"image", "thumbnail"}
)

// NormalizeProduct turns p into a cart line carrying quantity units.
// A quantity below 1 is treated as 1.
func NormalizeProduct(p Product, quantity int) (CartLine, error) {
	if quantity < 1 {
		quantity = 1
	}

	id := FlexString(p.first(productIDKeys))
	if id == "" {
		return CartLine{}, apperrors.InvalidInput("product id is required")
	}

	name := FlexString(p.first(productNameKeys))
	if name == "" {
		name = fmt.Sprintf("Product %s", id)
	}

	price := FlexDecimal(p.first(productPriceKeys))
	if price.IsNegative() {
		return CartLine{}, apperrors.InvalidInput("product price must not be negative")
	}

	image := FlexString(p.first(productImageKeys))
	if image == "" {
		if images, ok := p["images"].([]any); ok && len(images) > 0 {
			image = FlexString(images[0])
		}
	}

	return CartLine{
		ProductID: id,
		Name:      name,
		UnitPrice: price,
		ImageRef:  image,
		Quantity:  quantity,
	}, nil
}

// first returns the value of the first key present with a non-nil value.
func (p Product) first(keys []string) any {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// FlexString renders an identifier-like value (string or number) as a string.
func FlexString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// FlexDecimal parses a price-like value (number or numeric string). Values
// that do not parse count as zero.
func FlexDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return t
	case float64:
		return decimal.NewFromFloat(t)
	case float32:
		return decimal.NewFromFloat32(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case json.Number:
		return parseDecimal(t.String())
	case string:
		return parseDecimal(t)
	default:
		return decimal.Zero
	}
}

// FlexInt parses a count-like value, returning def when absent or invalid.
func FlexInt(v any, def int) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
		if f, err := t.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
