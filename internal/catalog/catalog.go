// Package catalog holds the static list of products offered as buttons.
// The catalog is immutable once built and safe to share between conversations.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"tradelink/internal/model"
)

// Catalog is an ordered, immutable list of products.
type Catalog struct {
	products []model.Product
}

// New builds a catalog from the given products, rejecting empty or duplicate names.
func New(products []model.Product) (*Catalog, error) {
	seen := make(map[string]bool, len(products))
	out := make([]model.Product, 0, len(products))
	for i, p := range products {
		if p.Name == "" || p.URL == "" {
			return nil, fmt.Errorf("catalog entry %d: name and url are required", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("catalog entry %d: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return &Catalog{products: out}, nil
}

// FormatVersion is the catalog file layout this package reads.
// Files may declare any version with the same major.
const FormatVersion = "v1.0.0"

// fileFormat is the YAML layout of a catalog file:
//
//	version: "1.0"
//	products:
//	  - name: Galaxy S24
//	    url: https://shop.samsung.com/br/galaxy-s24/p
type fileFormat struct {
	Version  string          `yaml:"version"`
	Products []model.Product `yaml:"products"`
}

// checkVersion accepts an empty version (treated as FormatVersion) or a
// semver-like string with the major of FormatVersion.
func checkVersion(v string) error {
	if v == "" {
		return nil
	}
	nv := v
	if !strings.HasPrefix(nv, "v") {
		nv = "v" + nv
	}
	if !semver.IsValid(nv) {
		return fmt.Errorf("invalid catalog version %q", v)
	}
	if semver.Major(nv) != semver.Major(FormatVersion) {
		return fmt.Errorf("unsupported catalog version %q (want %s.x)", v, semver.Major(FormatVersion))
	}
	return nil
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	if err := checkVersion(f.Version); err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	if len(f.Products) == 0 {
		return nil, fmt.Errorf("catalog file %s has no products", path)
	}

	return New(f.Products)
}

// Default returns the built-in catalog for the given storefront base URL
// (e.g. "https://shop.samsung.com/br").
func Default(storeBase string) *Catalog {
	slugs := []struct{ name, slug string }{
		{"Galaxy M15 5G", "galaxy-m15"},
		{"Galaxy M55 5G", "galaxy-m55"},
		{"Galaxy A35 5G", "galaxy-a35"},
		{"Galaxy A55 5G", "galaxy-a55"},
		{"Galaxy S24", "galaxy-s24"},
		{"Galaxy S24+", "galaxy-s24-plus"},
		{"Galaxy S24 Ultra", "galaxy-s24-ultra"},
	}

	products := make([]model.Product, len(slugs))
	for i, s := range slugs {
		products[i] = model.Product{Name: s.name, URL: storeBase + "/" + s.slug + "/p"}
	}
	return &Catalog{products: products}
}

// Products returns a copy of the catalog entries in display order.
func (c *Catalog) Products() []model.Product {
	return append([]model.Product(nil), c.products...)
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.products)
}

// At returns the entry at index i.
func (c *Catalog) At(i int) (model.Product, bool) {
	if i < 0 || i >= len(c.products) {
		return model.Product{}, false
	}
	return c.products[i], true
}

// Lookup finds a product by display name.
func (c *Catalog) Lookup(name string) (model.Product, bool) {
	for _, p := range c.products {
		if p.Name == name {
			return p, true
		}
	}
	return model.Product{}, false
}
