package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without wrapped error",
			err: &Error{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
			},
			want: "TEST_ERROR: something went wrong",
		},
		{
			name: "with wrapped error",
			err: &Error{
				Code:    "TEST_ERROR",
				Message: "something went wrong",
				Err:     errors.New("underlying cause"),
			},
			want: "TEST_ERROR: something went wrong (underlying cause)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	err := NewUpstreamError(CodePageNotFound, "storefront", underlying)

	if !errors.Is(err, underlying) {
		t.Error("errors.Is should find the underlying cause")
	}
	if !errors.Is(err, ErrUpstream) {
		t.Error("errors.Is should find the kind sentinel")
	}
	if errors.Is(err, ErrNoStock) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		kind     ErrorKind
		code     string
		sentinel error
	}{
		{"invalid input", NewInvalidInputError(CodeInvalidURL, "bad"), KindInvalidInput, CodeInvalidURL, ErrInvalidInput},
		{"upstream", NewUpstreamError(CodeItemAttachFailed, "cart", nil), KindUpstreamUnavailable, CodeItemAttachFailed, ErrUpstream},
		{"parse", NewParseError("product id", nil), KindUnexpectedResponseShape, CodeParseError, ErrUnexpectedResponse},
		{"no stock", NewNoStockError("https://x"), KindNoStock, CodeNoStock, ErrNoStock},
		{"region", NewRegionUnavailableError("no shipping"), KindRegionUnavailable, CodeOutOfStockForRegion, ErrRegionUnavailable},
		{"permission", NewPermissionDeniedError(42), KindPermissionDenied, CodePermissionDenied, ErrPermissionDenied},
		{"internal", NewInternalError(errors.New("boom")), KindInternal, CodeInternal, ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", tt.err.Kind, tt.kind)
			}
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.sentinel)
			}
		})
	}
}

func TestCodeOfAndKindOf_Wrapped(t *testing.T) {
	inner := NewNoStockError("https://shop.example.com/br/x/p")
	wrapped := fmt.Errorf("resolving: %w", inner)

	if got := CodeOf(wrapped); got != CodeNoStock {
		t.Errorf("CodeOf = %s, want %s", got, CodeNoStock)
	}
	if got := KindOf(wrapped); got != KindNoStock {
		t.Errorf("KindOf = %s, want %s", got, KindNoStock)
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %s, want %s", got, CodeInternal)
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{NewInvalidInputError(CodeInvalidURL, "x"), "Invalid URL format."},
		{NewNoStockError("x"), "The chosen product is not available at the moment."},
		{NewRegionUnavailableError("x"), "The product is out of stock for the delivery region."},
		{&Error{Code: CodeCartCreationFailed}, "Failed to generate the cart link."},
		{errors.New("unknown"), "An unexpected error occurred."},
	}

	for _, tt := range tests {
		if got := UserMessage(tt.err); got != tt.want {
			t.Errorf("UserMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
