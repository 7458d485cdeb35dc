package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"tradelink/internal/middleware"
	"tradelink/internal/model"
)

// === MCP Tool Input/Output Types ===

// ResolveVariantsInput is the input schema for resolve_variants.
type ResolveVariantsInput struct {
	URL string `json:"url" jsonschema:"storefront product page URL"`
}

// VariantsOutput lists in-stock variants by capacity.
type VariantsOutput struct {
	URL        string             `json:"url"`
	Capacities []CapacityVariants `json:"capacities"`
}

// CapacityVariants is one capacity with its in-stock colors.
type CapacityVariants struct {
	Capacity  string      `json:"capacity"`
	ProductID string      `json:"product_id"`
	Colors    []ColorItem `json:"colors"`
}

// ColorItem maps a color to its cart item id.
type ColorItem struct {
	Color  string `json:"color"`
	ItemID string `json:"item_id"`
}

// LookupDeviceInput is the input schema for lookup_device.
type LookupDeviceInput struct {
	IMEI string `json:"imei" jsonschema:"15-digit IMEI of the device to trade in"`
}

// BuildCartLinkInput is the input schema for build_cart_link.
type BuildCartLinkInput struct {
	ProductID string `json:"product_id" jsonschema:"storefront product id"`
	ItemID    string `json:"item_id" jsonschema:"storefront item (SKU) id"`
}

// ListCatalogInput is the empty input of list_catalog.
type ListCatalogInput struct{}

// CatalogOutput lists the catalog in button order.
type CatalogOutput struct {
	Products []model.Product `json:"products"`
}

// NewMCPServer creates an MCP server with the operator tools registered.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "tradelink",
			Version: h.version,
		},
		&mcp.ServerOptions{
			Instructions: "Trade-in cart link tools. Resolve product variants, validate trade-in devices " +
				"and build checkout links without going through the chat.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_variants",
		Description: "List in-stock capacities and colors of a product page with their product and item ids.",
	}, h.mcpResolveVariants)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_device",
		Description: "Validate a trade-in device IMEI and return its brand, model and storage options.",
	}, h.mcpLookupDevice)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "build_cart_link",
		Description: "Create a cart with one item and the trade-in marketing tag and return its checkout link.",
	}, h.mcpBuildCartLink)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_catalog",
		Description: "List the products offered as buttons in the chat.",
	}, h.mcpListCatalog)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpResolveVariants(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ResolveVariantsInput,
) (*mcp.CallToolResult, *VariantsOutput, error) {
	if input.URL == "" {
		return nil, nil, fmt.Errorf("url is required")
	}
	h.logTool(ctx, "resolve_variants", slog.String("url", input.URL))

	variants, err := h.resolver.Resolve(ctx, input.URL)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := &VariantsOutput{URL: input.URL, Capacities: make([]CapacityVariants, 0, len(variants))}
	for _, capacity := range variants.Capacities() {
		v := variants[capacity]
		colors := make([]ColorItem, 0, len(v.Colors))
		for _, c := range v.SortedColors() {
			colors = append(colors, ColorItem{Color: c, ItemID: v.Colors[c]})
		}
		out.Capacities = append(out.Capacities, CapacityVariants{
			Capacity:  capacity,
			ProductID: v.ProductID,
			Colors:    colors,
		})
	}
	return nil, out, nil
}

func (h *Handler) mcpLookupDevice(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input LookupDeviceInput,
) (*mcp.CallToolResult, *model.TradeInDevice, error) {
	h.logTool(ctx, "lookup_device")

	device, err := h.devices.Lookup(ctx, input.IMEI)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}

	out := *device
	if out.Capacities == nil {
		out.Capacities = []string{}
	}
	return nil, &out, nil
}

func (h *Handler) mcpBuildCartLink(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input BuildCartLinkInput,
) (*mcp.CallToolResult, *model.CartLink, error) {
	if input.ProductID == "" || input.ItemID == "" {
		return nil, nil, fmt.Errorf("product_id and item_id are required")
	}
	h.logTool(ctx, "build_cart_link",
		slog.String("product_id", input.ProductID),
		slog.String("item_id", input.ItemID))

	link, err := h.links.Build(ctx, input.ProductID, input.ItemID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, link, nil
}

func (h *Handler) mcpListCatalog(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListCatalogInput,
) (*mcp.CallToolResult, *CatalogOutput, error) {
	return nil, &CatalogOutput{Products: h.catalog.Products()}, nil
}

// mcpError converts data-access errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var mErr *model.Error
	if errors.As(err, &mErr) && mErr.Kind != model.KindInternal {
		return fmt.Errorf("%s: %s", mErr.Code, mErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", slog.String("error", err.Error()))
	return fmt.Errorf("internal error")
}

func (h *Handler) logTool(ctx context.Context, tool string, attrs ...slog.Attr) {
	if op, ok := middleware.OperatorFromContext(ctx); ok && op.ID != "" {
		attrs = append(attrs, slog.String("operator", op.ID))
	}
	h.logger.LogAttrs(ctx, slog.LevelInfo, "tool call", append([]slog.Attr{slog.String("tool", tool)}, attrs...)...)
}
