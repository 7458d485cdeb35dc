// Package tradein validates trade-in devices against the trade-in service.
package tradein

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

// DefaultEndpoint is the validation endpoint; {imei} is replaced by the identifier.
const DefaultEndpoint = "https://shop.samsung.com/br/tradein/vtex/validateImei/{imei}"

var imeiPattern = regexp.MustCompile(`^\d{15}$`)

// NormalizeIMEI removes the spaces users type between digit groups.
func NormalizeIMEI(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

// ValidFormat reports whether imei is exactly 15 digits.
func ValidFormat(imei string) bool {
	return imeiPattern.MatchString(imei)
}

// validationResponse is the trade-in service reply.
type validationResponse struct {
	IsValid        bool     `json:"isValid"`
	Brand          string   `json:"brand"`
	Model          string   `json:"model"`
	StorageOptions []string `json:"storageOptions"`
}

// Config holds lookup client configuration.
type Config struct {
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client implements adapter.DeviceLookup.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     *slog.Logger
}

// New creates a lookup client.
func New(cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.Contains(endpoint, "{imei}") {
		return nil, fmt.Errorf("trade-in endpoint must contain {imei}")
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

	return &Client{httpClient: client, endpoint: endpoint, logger: logger}, nil
}

// Lookup validates imei and returns the device it identifies.
//
// A malformed identifier fails with INVALID_DEVICE before any request.
// An explicit "not valid" answer, a request failure and a reply missing
// brand or model all fail with DEVICE_INVALID_OR_UNAVAILABLE: the service
// does not let callers tell them apart.
func (c *Client) Lookup(ctx context.Context, imei string) (*model.TradeInDevice, error) {
	imei = NormalizeIMEI(imei)
	if !ValidFormat(imei) {
		return nil, model.NewInvalidInputError(model.CodeInvalidDevice, "identifier must be exactly 15 digits")
	}

	resp, err := c.validate(ctx, imei)
	if err != nil {
		c.logger.Warn("device lookup failed", slog.String("imei", mask(imei)), slog.String("error", err.Error()))
		return nil, unavailable(err)
	}
	if !resp.IsValid || resp.Brand == "" || resp.Model == "" {
		c.logger.Info("device rejected", slog.String("imei", mask(imei)), slog.Bool("is_valid", resp.IsValid))
		return nil, unavailable(nil)
	}

	return &model.TradeInDevice{
		IMEI:       imei,
		Brand:      resp.Brand,
		Model:      resp.Model,
		Capacities: model.SortCanonical(resp.StorageOptions),
	}, nil
}

func (c *Client) validate(ctx context.Context, imei string) (*validationResponse, error) {
	endpoint := strings.ReplaceAll(c.endpoint, "{imei}", url.PathEscape(imei))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out validationResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &out, nil
}

func unavailable(err error) *model.Error {
	kind := model.KindInvalidInput
	if err != nil {
		kind = model.KindUpstreamUnavailable
	}
	return &model.Error{
		Kind:    kind,
		Code:    model.CodeDeviceInvalidOrUnavailable,
		Message: "device is invalid or the trade-in service is unavailable",
		Err:     err,
	}
}

// mask keeps the last four digits for log correlation.
func mask(imei string) string {
	if len(imei) <= 4 {
		return imei
	}
	return strings.Repeat("*", len(imei)-4) + imei[len(imei)-4:]
}

// Verify Client implements adapter.DeviceLookup at compile time.
var _ adapter.DeviceLookup = (*Client)(nil)
