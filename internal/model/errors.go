package model

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind.
// Use errors.Is() to check against these.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUpstream           = errors.New("upstream unavailable")
	ErrUnexpectedResponse = errors.New("unexpected response shape")
	ErrNoStock            = errors.New("no stock")
	ErrRegionUnavailable  = errors.New("region unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInternal           = errors.New("internal error")
)

// ErrorKind classifies a failure for propagation decisions.
type ErrorKind string

const (
	KindInvalidInput            ErrorKind = "invalid_input"
	KindUpstreamUnavailable     ErrorKind = "upstream_unavailable"
	KindUnexpectedResponseShape ErrorKind = "unexpected_response_shape"
	KindNoStock                 ErrorKind = "no_stock"
	KindRegionUnavailable       ErrorKind = "region_unavailable"
	KindPermissionDenied        ErrorKind = "permission_denied"
	KindInternal                ErrorKind = "internal"
)

// Component-level failure codes.
const (
	CodeInvalidURL                 = "INVALID_URL"
	CodePageNotFound               = "PAGE_NOT_FOUND"
	CodeParseError                 = "PARSE_ERROR"
	CodeNoStock                    = "NO_STOCK"
	CodeInvalidDevice              = "INVALID_DEVICE"
	CodeDeviceInvalidOrUnavailable = "DEVICE_INVALID_OR_UNAVAILABLE"
	CodeCartCreationFailed         = "CART_CREATION_FAILED"
	CodeItemAttachFailed           = "ITEM_ATTACH_FAILED"
	CodeDiscountAttachFailed       = "DISCOUNT_ATTACH_FAILED"
	CodeOutOfStockForRegion        = "OUT_OF_STOCK_FOR_REGION"
	CodeLinkGenerationFailed       = "LINK_GENERATION_FAILED"
	CodePermissionDenied           = "PERMISSION_DENIED"
	CodeInternal                   = "INTERNAL_ERROR"
)

// Error is the structured error returned by every data-access component.
// Implements error interface and supports unwrapping to the kind sentinel
// and to the underlying cause.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindUpstreamUnavailable:
		return ErrUpstream
	case KindUnexpectedResponseShape:
		return ErrUnexpectedResponse
	case KindNoStock:
		return ErrNoStock
	case KindRegionUnavailable:
		return ErrRegionUnavailable
	case KindPermissionDenied:
		return ErrPermissionDenied
	default:
		return ErrInternal
	}
}

// NewInvalidInputError creates an error for input rejected before any external call.
func NewInvalidInputError(code, message string) *Error {
	return &Error{Kind: KindInvalidInput, Code: code, Message: message}
}

// NewUpstreamError creates an error for network/HTTP failures against a dependency.
func NewUpstreamError(code, service string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Code:    code,
		Message: fmt.Sprintf("%s request failed", service),
		Err:     err,
	}
}

// NewParseError creates an error for a successful response that could not be understood.
func NewParseError(what string, err error) *Error {
	return &Error{
		Kind:    KindUnexpectedResponseShape,
		Code:    CodeParseError,
		Message: fmt.Sprintf("could not extract %s", what),
		Err:     err,
	}
}

// NewNoStockError creates an error for a well-formed response with no viable variants.
func NewNoStockError(url string) *Error {
	return &Error{
		Kind:    KindNoStock,
		Code:    CodeNoStock,
		Message: fmt.Sprintf("no in-stock variant for %s", url),
	}
}

// NewRegionUnavailableError creates the cart-assembly error for a region that rejects the item.
func NewRegionUnavailableError(reason string) *Error {
	return &Error{
		Kind:    KindRegionUnavailable,
		Code:    CodeOutOfStockForRegion,
		Message: reason,
	}
}

// NewPermissionDeniedError creates an access-control error.
func NewPermissionDeniedError(userID int64) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("user %d is not a member of the access group", userID),
	}
}

// NewInternalError creates an error for unexpected failures.
func NewInternalError(err error) *Error {
	return &Error{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Message: "an internal error occurred",
		Err:     err,
	}
}

// CodeOf returns the component code of err, or CodeInternal when err carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// UserMessage maps an error to the text shown in chat.
func UserMessage(err error) string {
	switch CodeOf(err) {
	case CodeInvalidURL:
		return "Invalid URL format."
	case CodePageNotFound:
		return "Page not found."
	case CodeParseError:
		return "Could not read the product details."
	case CodeNoStock:
		return "The chosen product is not available at the moment."
	case CodeInvalidDevice, CodeDeviceInvalidOrUnavailable:
		return "The IMEI is invalid."
	case CodeOutOfStockForRegion:
		return "The product is out of stock for the delivery region."
	case CodeCartCreationFailed, CodeItemAttachFailed, CodeDiscountAttachFailed, CodeLinkGenerationFailed:
		return "Failed to generate the cart link."
	case CodePermissionDenied:
		return "Sorry, you are not allowed to use this bot."
	default:
		return "An unexpected error occurred."
	}
}
