package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseOperatorAuth(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		token   string
		id      string
		wantErr bool
	}{
		{name: "token only", header: `token="abc"`, token: "abc"},
		{name: "with token id", header: `token="abc";id=ana`, token: "abc", id: "ana"},
		{name: "with string id", header: `token="abc";id="ops team"`, token: "abc", id: "ops team"},
		{name: "extra members", header: `token="abc", scope=tools`, token: "abc"},
		{name: "empty", header: "", wantErr: true},
		{name: "no token", header: `id=ana`, wantErr: true},
		{name: "not a string", header: `token=42`, wantErr: true},
		{name: "empty string", header: `token=""`, wantErr: true},
		{name: "inner list", header: `token=("a" "b")`, wantErr: true},
		{name: "malformed", header: `token="unterminated`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, op, err := ParseOperatorAuth(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %q", token)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if token != tt.token || op.ID != tt.id {
				t.Errorf("got %q/%q, want %q/%q", token, op.ID, tt.token, tt.id)
			}
		})
	}
}

func TestOperatorAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var gotOperator Operator
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if op, ok := OperatorFromContext(r.Context()); ok {
			gotOperator = op
		}
		w.WriteHeader(http.StatusOK)
	})
	handler := OperatorAuth("s3cret", logger)(next)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"valid", "/mcp", `token="s3cret";id=ana`, http.StatusOK},
		{"wrong token", "/mcp", `token="guess"`, http.StatusUnauthorized},
		{"missing header", "/mcp", "", http.StatusUnauthorized},
		{"health exempt", "/health", "", http.StatusOK},
		{"metrics exempt", "/metrics", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.header != "" {
				req.Header.Set(OperatorAuthHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && w.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
			}
		})
	}

	if gotOperator.ID != "ana" {
		t.Errorf("operator = %+v, want ana", gotOperator)
	}
}

func TestOperatorAuthDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := OperatorAuth("", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/mcp", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
