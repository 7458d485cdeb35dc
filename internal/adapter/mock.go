package adapter

import (
	"context"
	"sync"

	"tradelink/internal/model"
)

// Mock implements every adapter interface for testing.
// Each method can be configured via function fields; calls are recorded.
type Mock struct {
	ResolveFunc       func(ctx context.Context, url string) (model.VariantMap, error)
	LookupFunc        func(ctx context.Context, imei string) (*model.TradeInDevice, error)
	BuildFunc         func(ctx context.Context, productID, itemID string) (*model.CartLink, error)
	BuildEnrolledFunc func(ctx context.Context, dc model.DiscountContext) (*model.CartLink, error)

	mu    sync.Mutex
	calls []string
}

// Calls returns the recorded method names in call order.
func (m *Mock) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallCount returns how many times the named method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	m.calls = append(m.calls, method)
	m.mu.Unlock()
}

// Resolve calls the configured ResolveFunc or returns NO_STOCK.
func (m *Mock) Resolve(ctx context.Context, url string) (model.VariantMap, error) {
	m.record("Resolve")
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, url)
	}
	return nil, model.NewNoStockError(url)
}

// Lookup calls the configured LookupFunc or reports the device as unavailable.
func (m *Mock) Lookup(ctx context.Context, imei string) (*model.TradeInDevice, error) {
	m.record("Lookup")
	if m.LookupFunc != nil {
		return m.LookupFunc(ctx, imei)
	}
	return nil, &model.Error{Kind: model.KindUpstreamUnavailable, Code: model.CodeDeviceInvalidOrUnavailable, Message: "mock"}
}

// Build calls the configured BuildFunc or returns an error.
func (m *Mock) Build(ctx context.Context, productID, itemID string) (*model.CartLink, error) {
	m.record("Build")
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, productID, itemID)
	}
	return nil, model.NewInternalError(nil)
}

// BuildEnrolled calls the configured BuildEnrolledFunc or returns an error.
func (m *Mock) BuildEnrolled(ctx context.Context, dc model.DiscountContext) (*model.CartLink, error) {
	m.record("BuildEnrolled")
	if m.BuildEnrolledFunc != nil {
		return m.BuildEnrolledFunc(ctx, dc)
	}
	return nil, model.NewInternalError(nil)
}

// Verify Mock implements the interfaces at compile time.
var (
	_ CatalogResolver = (*Mock)(nil)
	_ DeviceLookup    = (*Mock)(nil)
	_ CartLinkBuilder = (*Mock)(nil)
)
