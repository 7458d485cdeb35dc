// Package model holds the value types shared by the resolver, the lookup client,
// the cart builder and the conversation engine.
package model

import "sort"

// Product is one catalog entry: a display name and its storefront URL.
type Product struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// Variant holds the identifiers for one storage capacity of a product.
// ProductID is the capacity-specific numeric product identifier; Colors maps
// each in-stock color name to its item (SKU) identifier.
type Variant struct {
	ProductID string            `json:"id"`
	Colors    map[string]string `json:"colors"`
}

// SortedColors returns the color names in lexicographic order.
func (v Variant) SortedColors() []string {
	colors := make([]string, 0, len(v.Colors))
	for c := range v.Colors {
		colors = append(colors, c)
	}
	sort.Strings(colors)
	return colors
}

// VariantMap maps capacity label (e.g. "256 GB") to its variant.
// Every entry has at least one in-stock color; an empty map means the product is unavailable.
type VariantMap map[string]Variant

// Capacities returns the capacity labels in natural storage order
// (numeric value, TB after GB), falling back to lexicographic order.
func (m VariantMap) Capacities() []string {
	caps := make([]string, 0, len(m))
	for c := range m {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool {
		bi, oki := StorageBytes(caps[i])
		bj, okj := StorageBytes(caps[j])
		if oki && okj && bi != bj {
			return bi < bj
		}
		if oki != okj {
			return oki
		}
		return caps[i] < caps[j]
	})
	return caps
}

// TradeInDevice is a device validated by the trade-in service.
// Only constructed from an identifier that passed the format check.
type TradeInDevice struct {
	IMEI       string   `json:"imei"`
	Brand      string   `json:"brand"`
	Model      string   `json:"model"`
	Capacities []string `json:"capacities"`
}

// DiscountContext carries the trade-in data needed by the enrollment flow.
// ProductID and ItemID pin the capacity and color chosen in the conversation.
type DiscountContext struct {
	ProductURL     string
	ProductID      string
	ItemID         string
	Color          string
	Device         TradeInDevice
	DeviceCapacity string
}

// CartLink is the terminal value of one link attempt.
type CartLink struct {
	URL         string `json:"url,omitempty"`
	OrderFormID string `json:"order_form_id,omitempty"`
	Discounted  bool   `json:"discounted"`
}
