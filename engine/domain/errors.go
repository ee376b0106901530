package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the pipeline error surface. Every failure returned to
// a caller wraps exactly one of these.
var (
	ErrNotFound             = errors.New("profile not found")
	ErrRateLimited          = errors.New("rate limited")
	ErrNetwork              = errors.New("network failure")
	ErrInsufficientEvidence = errors.New("insufficient evidence")
	ErrService              = errors.New("reasoning service failure")
	ErrSchemaInvalid        = errors.New("schema invalid")
	ErrCancelled            = errors.New("cancelled")
)

// Kind maps an error to its taxonomy name, for metrics labels and HTTP
// status mapping. Unrecognized errors report as "internal".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrCancelled):
		return "cancelled"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrInsufficientEvidence):
		return "insufficient_evidence"
	case errors.Is(err, ErrService):
		return "service"
	case errors.Is(err, ErrSchemaInvalid):
		return "schema_invalid"
	default:
		return "internal"
	}
}

// SchemaError reports draft validation failures. Fields enumerates every
// violating field so a re-synthesis attempt can name them in its corrective
// instructions.
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema invalid: %s", strings.Join(e.Fields, "; "))
}

func (e *SchemaError) Unwrap() error { return ErrSchemaInvalid }

// Violations returns the violating field descriptions, or nil if err does
// not carry a SchemaError.
func Violations(err error) []string {
	var se *SchemaError
	if errors.As(err, &se) {
		return se.Fields
	}
	return nil
}
