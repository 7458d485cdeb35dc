// Package adapter defines the data-access interfaces the conversation engine
// depends on. Implementations live in storefront, tradein and cart.
package adapter

import (
	"context"

	"tradelink/internal/model"
)

// CatalogResolver turns a storefront product URL into its in-stock variants.
//
// Errors are *model.Error values:
//   - INVALID_URL when the URL does not match the product-URL pattern
//   - PAGE_NOT_FOUND / PARSE_ERROR when the base page cannot be resolved
//   - NO_STOCK when no capacity has an in-stock color
type CatalogResolver interface {
	Resolve(ctx context.Context, productURL string) (model.VariantMap, error)
}

// DeviceLookup validates a trade-in device identifier.
// Malformed identifiers are rejected with INVALID_DEVICE before any network call.
// Every other failure is DEVICE_INVALID_OR_UNAVAILABLE.
type DeviceLookup interface {
	Lookup(ctx context.Context, imei string) (*model.TradeInDevice, error)
}

// CartLinkBuilder assembles a checkout link for one item.
type CartLinkBuilder interface {
	// Build creates a cart with one unit of itemID, attaches the trade-in
	// marketing tag for (productID, itemID) when one exists, and returns the link.
	Build(ctx context.Context, productID, itemID string) (*model.CartLink, error)

	// BuildEnrolled runs the interactive trade-in enrollment for the chosen
	// color and device, and returns the link of the resulting cart.
	BuildEnrolled(ctx context.Context, dc model.DiscountContext) (*model.CartLink, error)
}

// Config holds the storefront coordinates shared by the HTTP adapters.
type Config struct {
	StoreHost   string
	StoreLocale string
}

// BaseURL returns the locale root of the storefront, e.g. https://shop.samsung.com/br.
func (c Config) BaseURL() string {
	return "https://" + c.StoreHost + "/" + c.StoreLocale
}
