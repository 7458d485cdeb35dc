// Package handler provides the operator HTTP surface: health checks,
// Prometheus metrics and MCP tools over the data-access operations.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"tradelink/internal/adapter"
	"tradelink/internal/catalog"
)

// Config holds handler dependencies. Metrics is optional.
type Config struct {
	Catalog  *catalog.Catalog
	Resolver adapter.CatalogResolver
	Devices  adapter.DeviceLookup
	Links    adapter.CartLinkBuilder
	Metrics  http.Handler
	Version  string
	Logger   *slog.Logger
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	catalog  *catalog.Catalog
	resolver adapter.CatalogResolver
	devices  adapter.DeviceLookup
	links    adapter.CartLinkBuilder
	metrics  http.Handler
	version  string
	logger   *slog.Logger
}

// New creates a Handler.
func New(cfg Config) (*Handler, error) {
	if cfg.Catalog == nil || cfg.Resolver == nil || cfg.Devices == nil || cfg.Links == nil {
		return nil, fmt.Errorf("catalog, resolver, device lookup and link builder are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		catalog:  cfg.Catalog,
		resolver: cfg.Resolver,
		devices:  cfg.Devices,
		links:    cfg.Links,
		metrics:  cfg.Metrics,
		version:  version,
		logger:   logger,
	}, nil
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Products int    `json:"products"`
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  h.version,
		Products: h.catalog.Len(),
	})
}

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
