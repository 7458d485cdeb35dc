package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"tradelink/internal/adapter"
	"tradelink/internal/model"
)

// rewriteTransport sends every request to the test server, keeping the path and query.
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func productPage(productID, refID string) string {
	ref := ""
	if refID != "" {
		ref = fmt.Sprintf(`<strong class="samsungbr-app-pdp-2-x-productReferenceId">%s</strong>`, refID)
	}
	return fmt.Sprintf(`<html><head>
<link rel="preload" href="https://shop.example.com/_v/segment/routing/vtex.store@2.x/product/%s/galaxy/p">
</head><body><div class="pdp">%s</div></body></html>`, productID, ref)
}

type item struct {
	id, name  string
	available bool
}

func searchResult(memory string, items ...item) []map[string]any {
	var out []map[string]any
	for _, it := range items {
		out = append(out, map[string]any{
			"itemId": it.id,
			"name":   it.name,
			"sellers": []map[string]any{
				{"commertialOffer": map[string]any{"IsAvailable": it.available}},
			},
		})
	}
	return []map[string]any{{
		"productId":       "x",
		"INTERNAL_MEMORY": []string{memory},
		"items":           out,
	}}
}

func capacityOptions(codes ...string) map[string]any {
	var opts []map[string]any
	for _, c := range codes {
		opts = append(opts, map[string]any{"optionCode": c})
	}
	return map[string]any{
		"response": map[string]any{
			"resultData": map[string]any{
				"productList": []map[string]any{{
					"chipOptions": []map[string]any{
						{"fmyChipType": "COLOR", "optionList": []map[string]any{{"optionCode": "Azul"}}},
						{"fmyChipType": "MOBILE MEMORY", "optionList": opts},
					},
				}},
			},
		},
	}
}

// fakeStore serves pages, capacity options and catalog search results by path.
type fakeStore struct {
	pages    map[string]string
	options  any
	searches map[string]any
	requests atomic.Int32
}

func (f *fakeStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.requests.Add(1)

	switch {
	case strings.HasPrefix(r.URL.Path, "/v6/front/b2c/product/card/detail/global"):
		if f.options == nil {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(f.options)
	case r.URL.Path == "/br/api/catalog_system/pub/products/search/":
		id := strings.TrimPrefix(r.URL.Query().Get("fq"), "productId:")
		res, ok := f.searches[id]
		if !ok {
			w.Write([]byte("[]"))
			return
		}
		json.NewEncoder(w).Encode(res)
	default:
		page, ok := f.pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(page))
	}
}

func newTestResolver(t *testing.T, store *fakeStore) *Resolver {
	t.Helper()
	srv := httptest.NewServer(store)
	t.Cleanup(srv.Close)

	target, _ := url.Parse(srv.URL)
	r, err := New(Config{
		Store:          adapter.Config{StoreHost: "shop.example.com", StoreLocale: "br"},
		CapacityAPIURL: "https://searchapi.example.com/v6/front/b2c/product/card/detail/global?siteCode=br&modelList={ref}",
		HTTPClient:     &http.Client{Transport: &rewriteTransport{target: target}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestNormalizeProductURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://shop.example.com/br/galaxy-m15-128gb/p", "https://shop.example.com/br/galaxy-m15/p"},
		{"https://shop.example.com/br/galaxy-s24/p?skuId=123", "https://shop.example.com/br/galaxy-s24/p"},
		{"https://shop.example.com/br/galaxy-s24-ultra-1TB/p#reviews", "https://shop.example.com/br/galaxy-s24-ultra/p"},
		{"https://shop.example.com/br/smartphones/galaxy-a55-256gb/p/extra", "https://shop.example.com/br/smartphones/galaxy-a55/p"},
		{"https://shop.example.com/br/galaxy-s24/p", "https://shop.example.com/br/galaxy-s24/p"},
	}

	for _, tt := range tests {
		got, err := NormalizeProductURL(tt.in)
		if err != nil {
			t.Errorf("NormalizeProductURL(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeProductURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCapacityURL(t *testing.T) {
	got := capacityURL("https://shop.example.com/br/galaxy-s24/p", "512 GB")
	if got != "https://shop.example.com/br/galaxy-s24-512gb/p" {
		t.Errorf("capacityURL = %q", got)
	}
}

func TestExtractIdentifiers(t *testing.T) {
	page := productPage("12345", "SM-S921BZKQZTO")

	id, ok := extractProductID(page)
	if !ok || id != "12345" {
		t.Errorf("extractProductID = %q, %v", id, ok)
	}
	ref, ok := extractReferenceID(page)
	if !ok || ref != "SM-S921BZKQZTO" {
		t.Errorf("extractReferenceID = %q, %v", ref, ok)
	}

	if _, ok := extractReferenceID(productPage("1", "")); ok {
		t.Error("extractReferenceID should fail without the element")
	}
	if _, ok := extractProductID("<html></html>"); ok {
		t.Error("extractProductID should fail without the routing link")
	}
}

func TestResolve_Scenario(t *testing.T) {
	store := &fakeStore{
		pages: map[string]string{
			"/br/galaxy-s24/p":       productPage("100", "SM-S921B"),
			"/br/galaxy-s24-512gb/p": productPage("200", ""),
			// no 1 TB page: that capacity is skipped
		},
		options: capacityOptions("256 GB", "512 GB", "1 TB"),
		searches: map[string]any{
			"100": searchResult("256GB(*)", item{"1001", "Azul", true}, item{"1002", "Preto", false}),
			"200": searchResult("512 GB", item{"2001", "Creme", true}, item{"2002", "Azul", true}),
		},
	}
	r := newTestResolver(t, store)

	got, err := r.Resolve(context.Background(), "https://shop.example.com/br/galaxy-s24/p")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("capacities = %v, want 256 GB and 512 GB", got.Capacities())
	}
	v256, ok := got["256 GB"]
	if !ok || v256.ProductID != "100" {
		t.Fatalf("256 GB = %+v", v256)
	}
	if len(v256.Colors) != 1 || v256.Colors["Azul"] != "1001" {
		t.Errorf("256 GB colors = %v, want only Azul", v256.Colors)
	}
	v512 := got["512 GB"]
	if v512.ProductID != "200" || v512.Colors["Creme"] != "2001" {
		t.Errorf("512 GB = %+v", v512)
	}

	for capacity, v := range got {
		if len(v.Colors) == 0 {
			t.Errorf("capacity %s has no colors", capacity)
		}
	}
}

func TestResolve_CapacityURLIsNormalized(t *testing.T) {
	store := &fakeStore{
		pages:   map[string]string{"/br/galaxy-m15/p": productPage("10", "SM-M156B")},
		options: capacityOptions(),
		searches: map[string]any{
			"10": searchResult("128GB", item{"11", "Cinza", true}),
		},
	}
	r := newTestResolver(t, store)

	got, err := r.Resolve(context.Background(), "https://shop.example.com/br/galaxy-m15-128gb/p?skuId=11")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// no capacity options: default capacity is the only one
	if caps := got.Capacities(); len(caps) != 1 || caps[0] != "128 GB" {
		t.Errorf("capacities = %v, want [128 GB]", caps)
	}
}

func TestResolve_NoStock(t *testing.T) {
	store := &fakeStore{
		pages:   map[string]string{"/br/galaxy-a35/p": productPage("30", "SM-A356E")},
		options: capacityOptions("128 GB", "256 GB"),
		searches: map[string]any{
			"30": searchResult("128 GB", item{"31", "Azul", false}),
		},
	}
	r := newTestResolver(t, store)

	_, err := r.Resolve(context.Background(), "https://shop.example.com/br/galaxy-a35/p")
	if !errors.Is(err, model.ErrNoStock) {
		t.Fatalf("err = %v, want NoStock", err)
	}
	if model.CodeOf(err) != model.CodeNoStock {
		t.Errorf("code = %s", model.CodeOf(err))
	}
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		store    *fakeStore
		wantCode string
		wantKind error
	}{
		{
			name:     "invalid url",
			url:      "https://other.example.com/br/galaxy-s24/p",
			store:    &fakeStore{},
			wantCode: model.CodeInvalidURL,
		},
		{
			name:     "page not found",
			url:      "https://shop.example.com/br/missing/p",
			store:    &fakeStore{},
			wantCode: model.CodePageNotFound,
		},
		{
			name:     "missing reference id",
			url:      "https://shop.example.com/br/galaxy-s24/p",
			store:    &fakeStore{pages: map[string]string{"/br/galaxy-s24/p": productPage("1", "")}},
			wantCode: model.CodeParseError,
		},
		{
			name: "capacity api down",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages: map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
			},
			wantCode: model.CodeParseError,
			wantKind: model.ErrUpstream,
		},
		{
			name: "capacity api empty object",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages:    map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
				options:  json.RawMessage(`{}`),
				searches: map[string]any{"1": searchResult("256 GB", item{"11", "Azul", true})},
			},
			wantCode: model.CodeParseError,
			wantKind: model.ErrUnexpectedResponse,
		},
		{
			name: "capacity api null response",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages:    map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
				options:  json.RawMessage(`{"response":null}`),
				searches: map[string]any{"1": searchResult("256 GB", item{"11", "Azul", true})},
			},
			wantCode: model.CodeParseError,
			wantKind: model.ErrUnexpectedResponse,
		},
		{
			name: "capacity api error body",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages:    map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
				options:  json.RawMessage(`{"error":"quota"}`),
				searches: map[string]any{"1": searchResult("256 GB", item{"11", "Azul", true})},
			},
			wantCode: model.CodeParseError,
			wantKind: model.ErrUnexpectedResponse,
		},
		{
			name: "capacity api not json",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages:    map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
				options:  json.RawMessage(`"maintenance"`),
				searches: map[string]any{"1": searchResult("256 GB", item{"11", "Azul", true})},
			},
			wantCode: model.CodeParseError,
			wantKind: model.ErrUnexpectedResponse,
		},
		{
			name: "default capacity missing",
			url:  "https://shop.example.com/br/galaxy-s24/p",
			store: &fakeStore{
				pages:    map[string]string{"/br/galaxy-s24/p": productPage("1", "REF")},
				options:  capacityOptions("256 GB"),
				searches: map[string]any{},
			},
			wantCode: model.CodeParseError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(t, tt.store)
			_, err := r.Resolve(context.Background(), tt.url)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := model.CodeOf(err); got != tt.wantCode {
				t.Errorf("code = %s, want %s (%v)", got, tt.wantCode, err)
			}
			if tt.wantKind != nil && !errors.Is(err, tt.wantKind) {
				t.Errorf("err = %v, want kind %v", err, tt.wantKind)
			}
		})
	}
}

func TestResolve_EmptyProductListUsesDefaultCapacity(t *testing.T) {
	store := &fakeStore{
		pages:    map[string]string{"/br/galaxy-a55/p": productPage("50", "SM-A556E")},
		options:  json.RawMessage(`{"response":{"resultData":{"productList":[]}}}`),
		searches: map[string]any{"50": searchResult("128 GB", item{"51", "Azul", true})},
	}
	r := newTestResolver(t, store)

	got, err := r.Resolve(context.Background(), "https://shop.example.com/br/galaxy-a55/p")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if caps := got.Capacities(); len(caps) != 1 || caps[0] != "128 GB" {
		t.Errorf("capacities = %v, want [128 GB]", caps)
	}
}

func TestResolve_InvalidURLMakesNoRequest(t *testing.T) {
	store := &fakeStore{}
	r := newTestResolver(t, store)

	for _, raw := range []string{"not a url", "http://shop.example.com/br/galaxy-s24/p", "https://shop.example.com/us/galaxy-s24"} {
		if _, err := r.Resolve(context.Background(), raw); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("Resolve(%q) err = %v, want InvalidInput", raw, err)
		}
	}
	if n := store.requests.Load(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without store host")
	}
	if _, err := New(Config{
		Store:          adapter.Config{StoreHost: "h", StoreLocale: "br"},
		CapacityAPIURL: "https://x/no-placeholder",
	}); err == nil {
		t.Error("expected error without {ref} placeholder")
	}
}
