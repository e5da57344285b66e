// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrRegistrationClosed = errors.New("registration window is closed")
	ErrPairing            = errors.New("invalid pairing")
	ErrWizardFinished     = errors.New("registration already submitted")
)

// ConfigurationError reports missing or inactive payment gateway setup.
type ConfigurationError struct {
	ParishID uint
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("payment not configured for parish %d: %s", e.ParishID, e.Reason)
}

// UnresolvableReference reports a gateway payment whose correlation id does
// not lead to a known registration.
type UnresolvableReference struct {
	Reference string
}

func (e *UnresolvableReference) Error() string {
	if e.Reference == "" {
		return "payment carries no external reference"
	}
	return fmt.Sprintf("unresolvable external reference %q", e.Reference)
}

// TransientGatewayError wraps network failures and 5xx answers from the gateway.
type TransientGatewayError struct {
	Op  string
	Err error
}

func (e *TransientGatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransientGatewayError) Unwrap() error { return e.Err }

// ValidationError carries per-field messages for a rejected form step.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsUnresolvable(err error) bool {
	var target *UnresolvableReference
	return errors.As(err, &target)
}

func IsTransient(err error) bool {
	var target *TransientGatewayError
	return errors.As(err, &target)
}

func AsValidation(err error) (*ValidationError, bool) {
	var target *ValidationError
	ok := errors.As(err, &target)
	return target, ok
}
