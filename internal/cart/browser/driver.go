// Package browser enrolls a trade-in device by driving the storefront's
// product page in a headless Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"tradelink/internal/cart"
	"tradelink/internal/model"
)

// Page is the set of page interactions the enrollment needs.
// Selectors are CSS or XPath expressions.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	ScrollBy(ctx context.Context, pixels int) error
	OrderFormID(ctx context.Context) (string, error)
	Close()
}

// Opener creates a fresh page (one tab, one cart) per enrollment.
type Opener func(ctx context.Context) (Page, error)

// Selectors locate the trade-in panel elements. %s in Color is replaced by
// the color name as a quoted XPath string literal.
type Selectors struct {
	Color             string
	TradeInButton     string
	TradeInPanel      string
	Brand             string
	Model             string
	Capacity          string
	IMEI              string
	ConditionConfirm  string
	IMEIAck           string
	PostalCode        string
	PostalCodeSubmit  string
	DeclineAddon      string
	ShippingConfirmed string
}

// DefaultSelectors match the storefront's trade-in panel markup.
var DefaultSelectors = Selectors{
	Color:             `//button[contains(@class,"skuSelector")][.//*[normalize-space(text())=%s]]`,
	TradeInButton:     `[class*="tradeInButton"]`,
	TradeInPanel:      `[class*="tradeInModal"]`,
	Brand:             `[class*="tradeInModal"] input[name="brand"]`,
	Model:             `[class*="tradeInModal"] input[name="model"]`,
	Capacity:          `[class*="tradeInModal"] input[name="storage"]`,
	IMEI:              `[class*="tradeInModal"] input[name="imei"]`,
	ConditionConfirm:  `[class*="tradeInModal"] [class*="conditionConfirm"]`,
	IMEIAck:           `[class*="tradeInModal"] [class*="imeiValidated"]`,
	PostalCode:        `input[name="postalCode"]`,
	PostalCodeSubmit:  `[class*="postalCodeSubmit"]`,
	DeclineAddon:      `[class*="addonDecline"]`,
	ShippingConfirmed: `[class*="shippingOptionSelected"]`,
}

const (
	panelAttempts  = 3
	panelWait      = 3 * time.Second
	scrollStep     = 400
	defaultTimeout = 20 * time.Second
)

// DefaultPostalCode is a placeholder delivery code used only to unlock the shipping step.
const DefaultPostalCode = "01001000"

// Config holds driver configuration.
type Config struct {
	Open        Opener
	Selectors   *Selectors
	WaitTimeout time.Duration
	PostalCode  string
	Logger      *slog.Logger
}

// Driver implements cart.DiscountEnrollmentDriver.
type Driver struct {
	open        Opener
	sel         Selectors
	waitTimeout time.Duration
	postalCode  string
	logger      *slog.Logger
}

// New creates a driver.
func New(cfg Config) (*Driver, error) {
	if cfg.Open == nil {
		return nil, fmt.Errorf("page opener is required")
	}

	sel := DefaultSelectors
	if cfg.Selectors != nil {
		sel = *cfg.Selectors
	}
	wait := cfg.WaitTimeout
	if wait == 0 {
		wait = defaultTimeout
	}
	postal := cfg.PostalCode
	if postal == "" {
		postal = DefaultPostalCode
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Driver{open: cfg.Open, sel: sel, waitTimeout: wait, postalCode: postal, logger: logger}, nil
}

// Enroll walks the trade-in panel for dc and returns the order form id of the filled cart.
func (d *Driver) Enroll(ctx context.Context, dc model.DiscountContext) (string, error) {
	page, err := d.open(ctx)
	if err != nil {
		return "", linkFailed("open page", err)
	}
	defer page.Close()

	logger := d.logger.With(slog.String("url", dc.ProductURL), slog.String("color", dc.Color))

	if err := page.Navigate(ctx, skuURL(dc.ProductURL, dc.ItemID)); err != nil {
		return "", linkFailed("navigate", err)
	}
	if err := page.Click(ctx, fmt.Sprintf(d.sel.Color, xpathLiteral(dc.Color))); err != nil {
		return "", linkFailed("select color", err)
	}
	if err := d.openPanel(ctx, page, logger); err != nil {
		return "", err
	}

	fields := []struct{ step, selector, value string }{
		{"fill brand", d.sel.Brand, dc.Device.Brand},
		{"fill model", d.sel.Model, dc.Device.Model},
		{"fill capacity", d.sel.Capacity, dc.DeviceCapacity},
		{"fill imei", d.sel.IMEI, dc.Device.IMEI},
	}
	for _, f := range fields {
		if err := page.Fill(ctx, f.selector, f.value); err != nil {
			return "", linkFailed(f.step, err)
		}
	}

	if err := page.Click(ctx, d.sel.ConditionConfirm); err != nil {
		return "", linkFailed("confirm condition", err)
	}
	if err := page.WaitVisible(ctx, d.sel.IMEIAck, d.waitTimeout); err != nil {
		return "", linkFailed("imei acknowledgment", err)
	}
	if err := page.Fill(ctx, d.sel.PostalCode, d.postalCode); err != nil {
		return "", linkFailed("postal code", err)
	}
	if err := page.Click(ctx, d.sel.PostalCodeSubmit); err != nil {
		return "", linkFailed("submit postal code", err)
	}
	if err := page.Click(ctx, d.sel.DeclineAddon); err != nil {
		return "", linkFailed("decline add-on", err)
	}

	if err := page.WaitVisible(ctx, d.sel.ShippingConfirmed, d.waitTimeout); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Info("no shipping option for placeholder region")
			return "", model.NewRegionUnavailableError("no shipping option for the placeholder region")
		}
		return "", linkFailed("shipping confirmation", err)
	}

	id, err := page.OrderFormID(ctx)
	if err != nil {
		return "", linkFailed("read order form", err)
	}
	logger.Info("trade-in enrolled", slog.String("order_form_id", id))
	return id, nil
}

// openPanel clicks the trade-in button until the panel shows, scrolling between attempts.
func (d *Driver) openPanel(ctx context.Context, page Page, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= panelAttempts; attempt++ {
		if err := page.Click(ctx, d.sel.TradeInButton); err == nil {
			if err = page.WaitVisible(ctx, d.sel.TradeInPanel, panelWait); err == nil {
				return nil
			}
			lastErr = err
		} else {
			lastErr = err
		}
		if attempt == panelAttempts || ctx.Err() != nil {
			break
		}

		logger.Debug("trade-in panel not open, scrolling", slog.Int("attempt", attempt))
		if err := page.ScrollBy(ctx, scrollStep); err != nil {
			lastErr = err
		}
	}
	return linkFailed("open trade-in panel", lastErr)
}

// skuURL pins the product page to one SKU so the capacity is preselected.
func skuURL(productURL, itemID string) string {
	if itemID == "" {
		return productURL
	}
	u, err := url.Parse(productURL)
	if err != nil {
		return productURL
	}
	q := u.Query()
	q.Set("skuId", itemID)
	u.RawQuery = q.Encode()
	return u.String()
}

func linkFailed(step string, err error) *model.Error {
	return &model.Error{
		Kind:    model.KindUnexpectedResponseShape,
		Code:    model.CodeLinkGenerationFailed,
		Message: "enrollment step failed: " + step,
		Err:     err,
	}
}

// Verify Driver implements cart.DiscountEnrollmentDriver at compile time.
var _ cart.DiscountEnrollmentDriver = (*Driver)(nil)

// xpathLiteral quotes s for an XPath 1.0 expression, which has no escapes:
// a value holding both quote kinds is split and joined with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts)-1)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
