// Package apperr defines the error taxonomy shared by the proxy.
//
// Validation and configuration problems are client mistakes, provider
// problems are per-call RPC failures recovered close to where they happen,
// and upstream problems come from the DEX aggregator API. Keeping the kinds
// distinct lets callers pick a retry policy per kind instead of guessing
// from error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and HTTP mapping.
type Kind int

const (
	// KindConfiguration covers unknown chains and missing credentials.
	KindConfiguration Kind = iota
	// KindValidation covers malformed input; no I/O was attempted.
	KindValidation
	// KindProvider covers RPC timeouts, network failures and malformed
	// contract responses.
	KindProvider
	// KindUpstream covers non-2xx or malformed DEX aggregator responses.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindProvider:
		return "provider"
	case KindUpstream:
		return "upstream"
	}
	return "unknown"
}

// E is a classified error. Use the constructor helpers below.
type E struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *E) Unwrap() error { return e.Err }

// Configuration builds a configuration error.
func Configuration(format string, args ...any) *E {
	return &E{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// Validation builds a validation error.
func Validation(format string, args ...any) *E {
	return &E{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// Provider wraps a failed RPC call.
func Provider(err error, format string, args ...any) *E {
	return &E{Kind: KindProvider, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Upstream wraps a failed DEX aggregator call, preserving the upstream
// message so it can be surfaced to the caller.
func Upstream(err error, format string, args ...any) *E {
	return &E{Kind: KindUpstream, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err is (or wraps) an *E of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *E
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPStatus maps an error to the status code of the JSON envelope.
// Unclassified errors are internal.
func HTTPStatus(err error) int {
	var e *E
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindConfiguration, KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
