// Package storefront resolves product variants against a VTEX storefront.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tradelink/internal/adapter"
	"tradelink/internal/model"
	"tradelink/internal/transport"
)

// =============================================================================
// VARIANT RESOLUTION
// =============================================================================
//
// A storefront product page describes one capacity of a model family. The
// resolution walks from the capacity-independent page to every capacity:
//
//   product page      → numeric product id + reference id (model code)
//   capacity API      → memory option codes for the reference id
//   catalog search    → default capacity label + in-stock colors per product id
//   capacity page     → product id of each non-default capacity
//
// Only the base page, the capacity API and the default capacity lookup are
// fatal. Every later failure drops that one capacity and is logged.
// =============================================================================

// DefaultCapacityAPIURL is the search API endpoint; {ref} is replaced by the reference id.
const DefaultCapacityAPIURL = "https://searchapi.samsung.com/v6/front/b2c/product/card/detail/global?siteCode=br&modelList={ref}&commonCodeYN=N&saleSkuYN=N&onlyRequestSkuYN=N&keySummaryYN=Y&shopSiteCode=br"

// maxPageBytes bounds how much of a product page is read.
const maxPageBytes = 8 << 20

// Config holds resolver configuration.
type Config struct {
	Store          adapter.Config
	CapacityAPIURL string
	HTTPClient     *http.Client
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Resolver implements adapter.CatalogResolver.
// Holds no per-request state; safe for concurrent use.
type Resolver struct {
	httpClient     *http.Client
	baseURL        string
	capacityAPIURL string
	urlPattern     *regexp.Regexp
	logger         *slog.Logger
}

// New creates a resolver for the configured storefront.
func New(cfg Config) (*Resolver, error) {
	if cfg.Store.StoreHost == "" || cfg.Store.StoreLocale == "" {
		return nil, fmt.Errorf("store host and locale are required")
	}

	capacityAPI := cfg.CapacityAPIURL
	if capacityAPI == "" {
		capacityAPI = DefaultCapacityAPIURL
	}
	if !strings.Contains(capacityAPI, "{ref}") {
		return nil, fmt.Errorf("capacity API URL must contain {ref}")
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = transport.NewHTTPClient(timeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	pattern := regexp.MustCompile(`^https://` + regexp.QuoteMeta(cfg.Store.StoreHost) + `/` +
		regexp.QuoteMeta(cfg.Store.StoreLocale) + `/.+/p.*`)

	return &Resolver{
		httpClient:     client,
		baseURL:        cfg.Store.BaseURL(),
		capacityAPIURL: capacityAPI,
		urlPattern:     pattern,
		logger:         logger,
	}, nil
}

// ValidURL reports whether raw matches the storefront product-URL pattern.
func (r *Resolver) ValidURL(raw string) bool {
	return r.urlPattern.MatchString(raw)
}

// Resolve returns the in-stock variants of the product at productURL.
func (r *Resolver) Resolve(ctx context.Context, productURL string) (model.VariantMap, error) {
	if !r.ValidURL(productURL) {
		return nil, model.NewInvalidInputError(model.CodeInvalidURL, "url does not match the product pattern")
	}

	base, err := NormalizeProductURL(productURL)
	if err != nil {
		return nil, model.NewInvalidInputError(model.CodeInvalidURL, err.Error())
	}

	page, err := r.getPage(ctx, base)
	if err != nil {
		r.logger.Warn("product page fetch failed", slog.String("url", base), slog.String("error", err.Error()))
		return nil, model.NewUpstreamError(model.CodePageNotFound, "product page", err)
	}

	productID, ok := extractProductID(page)
	if !ok {
		r.logger.Warn("product id not found", slog.String("url", base))
		return nil, model.NewParseError("product id", nil)
	}
	refID, ok := extractReferenceID(page)
	if !ok {
		r.logger.Warn("reference id not found", slog.String("url", base))
		return nil, model.NewParseError("reference id", nil)
	}

	capacities, err := r.fetchCapacities(ctx, refID)
	if err != nil {
		r.logger.Warn("capacity lookup failed", slog.String("reference_id", refID), slog.String("error", err.Error()))
		return nil, err
	}

	defaultProduct, err := r.searchProduct(ctx, productID)
	if err != nil {
		r.logger.Warn("default capacity lookup failed", slog.String("product_id", productID), slog.String("error", err.Error()))
		return nil, err
	}
	if len(defaultProduct.InternalMemory) == 0 {
		r.logger.Warn("default capacity missing", slog.String("product_id", productID))
		return nil, model.NewParseError("default capacity", nil)
	}
	defaultCapacity := model.NormalizeCapacityLabel(defaultProduct.InternalMemory[0])

	if len(capacities) == 0 {
		capacities = []string{defaultCapacity}
	}

	variants := make(model.VariantMap, len(capacities))
	for _, capacity := range capacities {
		var (
			id      string
			product *catalogProduct
		)

		if capacity == defaultCapacity {
			id, product = productID, defaultProduct
		} else {
			id, product, err = r.resolveCapacity(ctx, base, capacity)
			if err != nil {
				r.logger.Warn("skipping capacity",
					slog.String("url", base),
					slog.String("capacity", capacity),
					slog.String("error", err.Error()),
				)
				continue
			}
		}

		colors := inStockColors(product)
		if len(colors) == 0 {
			r.logger.Info("capacity has no stock",
				slog.String("capacity", capacity),
				slog.String("product_id", id),
			)
			continue
		}
		variants[capacity] = model.Variant{ProductID: id, Colors: colors}
	}

	if len(variants) == 0 {
		return nil, model.NewNoStockError(base)
	}
	return variants, nil
}

// resolveCapacity fetches the capacity-specific page and its catalog entry.
func (r *Resolver) resolveCapacity(ctx context.Context, base, capacity string) (string, *catalogProduct, error) {
	pageURL := capacityURL(base, capacity)

	page, err := r.getPage(ctx, pageURL)
	if err != nil {
		return "", nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	id, ok := extractProductID(page)
	if !ok {
		return "", nil, fmt.Errorf("product id not found in %s", pageURL)
	}

	product, err := r.searchProduct(ctx, id)
	if err != nil {
		return "", nil, fmt.Errorf("searching product %s: %w", id, err)
	}
	return id, product, nil
}

// fetchCapacities lists the memory option codes of the model family.
func (r *Resolver) fetchCapacities(ctx context.Context, refID string) ([]string, error) {
	endpoint := strings.ReplaceAll(r.capacityAPIURL, "{ref}", url.QueryEscape(refID))

	var resp capacityResponse
	if err := r.getJSON(ctx, endpoint, "capacity options", &resp); err != nil {
		return nil, err
	}
	products, ok := resp.productList()
	if !ok {
		return nil, model.NewParseError("capacity options", fmt.Errorf("response has no resultData.productList"))
	}

	var capacities []string
	seen := make(map[string]bool)
	for _, product := range products {
		for _, chip := range product.ChipOptions {
			if chip.FmyChipType != memoryChipType {
				continue
			}
			for _, opt := range chip.OptionList {
				label := model.NormalizeCapacityLabel(opt.OptionCode)
				if label == "" || seen[label] {
					continue
				}
				seen[label] = true
				capacities = append(capacities, label)
			}
		}
	}
	return capacities, nil
}

// searchProduct queries the catalog search endpoint for one product id.
func (r *Resolver) searchProduct(ctx context.Context, productID string) (*catalogProduct, error) {
	endpoint := r.SearchProductURL(productID)

	var products []catalogProduct
	if err := r.getJSON(ctx, endpoint, "catalog product", &products); err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, model.NewParseError("catalog product", fmt.Errorf("empty search result for %s", productID))
	}
	return &products[0], nil
}

// SearchProductURL returns the catalog search endpoint for productID.
func (r *Resolver) SearchProductURL(productID string) string {
	return r.baseURL + "/api/catalog_system/pub/products/search/?fq=productId:" + url.QueryEscape(productID)
}

func inStockColors(p *catalogProduct) map[string]string {
	colors := make(map[string]string)
	for _, item := range p.Items {
		if item.available() && item.Name != "" && item.ItemID != "" {
			colors[item.Name] = item.ItemID
		}
	}
	return colors
}

// getPage fetches an HTML page and returns its body.
func (r *Resolver) getPage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	body, err := r.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// getJSON fetches endpoint and decodes the JSON body into out. Transport and
// status failures are upstream errors; a body that does not decode is a
// parse error. Both carry PARSE_ERROR, the code of the step that failed.
func (r *Resolver) getJSON(ctx context.Context, endpoint, what string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	body, err := r.do(req)
	if err != nil {
		return model.NewUpstreamError(model.CodeParseError, what, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return model.NewParseError(what, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func (r *Resolver) do(req *http.Request) ([]byte, error) {
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return body, nil
}

// Verify Resolver implements adapter.CatalogResolver at compile time.
var _ adapter.CatalogResolver = (*Resolver)(nil)
