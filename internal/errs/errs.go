// Package errs defines the error-kind taxonomy shared across the retrieval
// pipeline so callers can branch on failure class with errors.Is/errors.As
// instead of matching on message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error classes a caller can act on.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindEmbedderUnavailable Kind = "embedder_unavailable"
	KindIndexUnavailable  Kind = "index_unavailable"
	KindRateLimited       Kind = "rate_limited"
	KindProviderTimeout   Kind = "provider_timeout"
	KindGenerationFailed  Kind = "generation_failed"
	KindFatalConfig       Kind = "fatal_config_error"

	// kindPartialResult is an internal signal: some tier or index failed but
	// enough of the pipeline succeeded to return a degraded answer. It is
	// never surfaced to a caller as an error kind.
	kindPartialResult Kind = "partial_result"
)

// Error is a typed, wrapped error carrying one of the Kind values above.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Validation(op string, err error) error { return New(KindValidation, op, err) }
func EmbedderUnavailable(op string, err error) error {
	return New(KindEmbedderUnavailable, op, err)
}
func IndexUnavailable(op string, err error) error { return New(KindIndexUnavailable, op, err) }
func RateLimited(op string, err error) error      { return New(KindRateLimited, op, err) }
func ProviderTimeout(op string, err error) error  { return New(KindProviderTimeout, op, err) }
func GenerationFailed(op string, err error) error { return New(KindGenerationFailed, op, err) }
func FatalConfig(op string, err error) error      { return New(KindFatalConfig, op, err) }

// partialResult marks a response as degraded without failing the request.
// Internal only: spec §7 requires this never reach the wire as an error.
type partialResult struct {
	Reason string
}

func (p *partialResult) Error() string { return fmt.Sprintf("partial result: %s", p.Reason) }

func PartialResult(reason string) error { return &partialResult{Reason: reason} }

func IsPartialResult(err error) bool {
	_, ok := err.(*partialResult)
	return ok
}

// KindOf extracts the Kind from a wrapped *Error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
