package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dunglas/httpsfv"
)

// OperatorAuthHeader carries operator credentials as an RFC 8941 dictionary:
//
//	Operator-Auth: token="s3cret";id=ana
const OperatorAuthHeader = "Operator-Auth"

type operatorKey struct{}

// Operator is the authenticated caller of an operator endpoint.
type Operator struct {
	ID string
}

// OperatorFromContext returns the operator stored by OperatorAuth.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	op, ok := ctx.Value(operatorKey{}).(Operator)
	return op, ok
}

// OperatorAuth rejects requests whose Operator-Auth token differs from
// token. Probe paths are exempt. An empty token disables the check.
func OperatorAuth(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProbePath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			got, op, err := ParseOperatorAuth(r.Header.Get(OperatorAuthHeader))
			if err != nil {
				logger.Warn("operator auth rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeAuthError(w, err.Error())
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				logger.Warn("operator auth rejected",
					slog.String("path", r.URL.Path),
					slog.String("operator", op.ID),
					slog.String("error", "token mismatch"))
				writeAuthError(w, "invalid operator token")
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey{}, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseOperatorAuth extracts the token and the optional operator id.
//
// Examples:
//   - token="abc"          → abc
//   - token="abc";id=ana   → abc, operator ana
func ParseOperatorAuth(header string) (string, Operator, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", Operator{}, errors.New("missing Operator-Auth header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", Operator{}, fmt.Errorf("invalid Operator-Auth header: %w", err)
	}

	member, ok := dict.Get("token")
	if !ok {
		return "", Operator{}, errors.New("token key not found in Operator-Auth header")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", Operator{}, errors.New("token value must be an item")
	}
	token, ok := item.Value.(string)
	if !ok || token == "" {
		return "", Operator{}, errors.New("token value must be a non-empty string")
	}

	var op Operator
	if id, ok := item.Params.Get("id"); ok {
		switch v := id.(type) {
		case httpsfv.Token:
			op.ID = string(v)
		case string:
			op.ID = v
		}
	}
	return token, op, nil
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	resp := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	resp.Error.Code = "unauthorized"
	resp.Error.Message = message

	json.NewEncoder(w).Encode(resp)
}
