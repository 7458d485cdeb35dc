// Package cart assembles checkout links with the trade-in discount attached.
package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tradelink/internal/adapter"
	"tradelink/internal/model"
	"tradelink/internal/transport"
)

// =============================================================================
// CART ASSEMBLY
// =============================================================================
//
// The checkout API is session based. One link costs four calls:
//
//   POST orderForm                              → orderFormId
//   POST orderForm/{id}/items                   one unit of the item, seller "1"
//   GET  tradein/vtex/getProductGroup/{p}/{i}   → marketingTag (may be absent)
//   POST orderForm/{id}/attachments/marketingData   only when a tag exists
//
// The trade-in tag lookup is keyed by (product id, item id). A pair without a
// tag is sold without discount and still yields a link.
// =============================================================================

// tradeInGroupSuffix is the base64 program id the storefront appends to product group lookups.
const tradeInGroupSuffix = "MQ=="

// defaultSeller is the seller id of first-party items.
const defaultSeller = "1"

// Config holds cart builder configuration.
type Config struct {
	Store      adapter.Config
	HTTPClient *http.Client
	Timeout    time.Duration
	Driver     DiscountEnrollmentDriver
	Logger     *slog.Logger
}

// Builder implements adapter.CartLinkBuilder.
type Builder struct {
	httpClient *http.Client
	baseURL    string
	driver     DiscountEnrollmentDriver
	logger     *slog.Logger
}

// New creates a cart builder. Driver may be nil when only the API flow is used.
func New(cfg Config) (*Builder, error) {
	if cfg.Store.StoreHost == "" || cfg.Store.StoreLocale == "" {
		return nil, fmt.Errorf("store host and locale are required")
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

	return &Builder{
		httpClient: client,
		baseURL:    cfg.Store.BaseURL(),
		driver:     cfg.Driver,
		logger:     logger,
	}, nil
}

// CheckoutURL returns the cart link for an order form.
func (b *Builder) CheckoutURL(orderFormID string) string {
	return b.baseURL + "/checkout?orderFormId=" + url.QueryEscape(orderFormID) + "#/cart"
}

// Build creates a cart holding one unit of itemID and attaches its trade-in tag.
func (b *Builder) Build(ctx context.Context, productID, itemID string) (*model.CartLink, error) {
	logger := b.logger.With(slog.String("product_id", productID), slog.String("item_id", itemID))

	orderFormID, err := b.createOrderForm(ctx)
	if err != nil {
		logger.Warn("cart creation failed", slog.String("error", err.Error()))
		return nil, err
	}
	logger = logger.With(slog.String("order_form_id", orderFormID))

	if err := b.addItem(ctx, orderFormID, itemID); err != nil {
		logger.Warn("item attach failed", slog.String("error", err.Error()))
		return nil, err
	}

	tag, err := b.marketingTag(ctx, productID, itemID)
	if err != nil {
		logger.Warn("trade-in tag lookup failed", slog.String("error", err.Error()))
		return nil, err
	}

	if tag != "" {
		if err := b.attachMarketingTag(ctx, orderFormID, tag); err != nil {
			logger.Warn("discount attach failed", slog.String("marketing_tag", tag), slog.String("error", err.Error()))
			return nil, err
		}
	} else {
		logger.Info("no trade-in tag for item")
	}

	return &model.CartLink{
		URL:         b.CheckoutURL(orderFormID),
		OrderFormID: orderFormID,
		Discounted:  tag != "",
	}, nil
}

// BuildEnrolled runs the interactive trade-in enrollment and links the resulting cart.
func (b *Builder) BuildEnrolled(ctx context.Context, dc model.DiscountContext) (*model.CartLink, error) {
	if b.driver == nil {
		return nil, model.NewInternalError(fmt.Errorf("no discount enrollment driver configured"))
	}

	orderFormID, err := b.driver.Enroll(ctx, dc)
	if err != nil {
		b.logger.Warn("discount enrollment failed",
			slog.String("url", dc.ProductURL),
			slog.String("color", dc.Color),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if orderFormID == "" {
		return nil, &model.Error{
			Kind:    model.KindUnexpectedResponseShape,
			Code:    model.CodeCartCreationFailed,
			Message: "enrollment finished without a cart session",
		}
	}

	return &model.CartLink{
		URL:         b.CheckoutURL(orderFormID),
		OrderFormID: orderFormID,
		Discounted:  true,
	}, nil
}

func (b *Builder) createOrderForm(ctx context.Context) (string, error) {
	var resp orderFormResponse
	if err := b.doJSON(ctx, http.MethodPost, b.baseURL+"/api/checkout/pub/orderForm", nil, &resp); err != nil {
		return "", model.NewUpstreamError(model.CodeCartCreationFailed, "cart creation", err)
	}
	if resp.OrderFormID == "" {
		return "", &model.Error{
			Kind:    model.KindUnexpectedResponseShape,
			Code:    model.CodeCartCreationFailed,
			Message: "cart session identifier missing from response",
		}
	}
	return resp.OrderFormID, nil
}

func (b *Builder) addItem(ctx context.Context, orderFormID, itemID string) error {
	body := addItemsRequest{OrderItems: []orderItem{{ID: itemID, Quantity: 1, Seller: defaultSeller}}}
	endpoint := b.baseURL + "/api/checkout/pub/orderForm/" + url.PathEscape(orderFormID) + "/items"

	if err := b.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return model.NewUpstreamError(model.CodeItemAttachFailed, "item attach", err)
	}
	return nil
}

// marketingTag returns the trade-in tag for the pair, or "" when none applies.
func (b *Builder) marketingTag(ctx context.Context, productID, itemID string) (string, error) {
	endpoint := b.baseURL + "/tradein/vtex/getProductGroup/" +
		url.PathEscape(productID) + "/" + url.PathEscape(itemID) + "/" + tradeInGroupSuffix

	raw, err := b.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", model.NewUpstreamError(model.CodeDiscountAttachFailed, "trade-in tag lookup", err)
	}

	var groups []productGroup
	if err := json.Unmarshal(raw, &groups); err != nil || len(groups) == 0 {
		return "", nil
	}
	return groups[0].MarketingTag, nil
}

func (b *Builder) attachMarketingTag(ctx context.Context, orderFormID, tag string) error {
	body := marketingDataRequest{MarketingTags: []string{tag}}
	endpoint := b.baseURL + "/api/checkout/pub/orderForm/" + url.PathEscape(orderFormID) + "/attachments/marketingData"

	if err := b.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return model.NewUpstreamError(model.CodeDiscountAttachFailed, "discount attach", err)
	}
	return nil
}

// doJSON sends body as JSON and decodes the reply into out when out is non-nil.
func (b *Builder) doJSON(ctx context.Context, method, endpoint string, body, out any) error {
	raw, err := b.do(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (b *Builder) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	setCheckoutHeaders(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Path)
	}
	return respBody, nil
}

// setCheckoutHeaders sets the headers the checkout API expects from the storefront.
func setCheckoutHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", transport.ChromeUserAgent)
}

// Verify Builder implements adapter.CartLinkBuilder at compile time.
var _ adapter.CartLinkBuilder = (*Builder)(nil)
