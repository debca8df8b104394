// Package rpcerror defines the error model of the dispatch engine.
// Errors are values: the executor, router, and transports pass *Error
// around and format it for the wire. Handlers may return their own
// domain kinds; the canonical kinds below are the ones the engine
// itself produces.
package rpcerror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a wire-stable error code.
type Kind string

// Canonical kinds produced by the engine. A handler may return any
// other kind; it passes through to the caller verbatim.
const (
	// KindNotFound — unknown path and no matching alias.
	KindNotFound Kind = "not_found"
	// KindInvalidPath — path violates both path grammars.
	KindInvalidPath Kind = "invalid_path"
	// KindValidation — input schema rejection; Details carries messages
	// grouped by dotted field path.
	KindValidation Kind = "validation_error"
	// KindTimeout — batch per-call deadline exceeded.
	KindTimeout Kind = "timeout"
	// KindBatchTooLarge — batch exceeds the configured size limit.
	KindBatchTooLarge Kind = "batch_too_large"
	// KindInternal — caught panic, response-validation failure, or a
	// middleware protocol violation.
	KindInternal Kind = "internal_error"
)

// Error is the user-visible failure shape. Kind is always present,
// Message is human-oriented, the remaining fields are kind-specific.
type Error struct {
	Kind        Kind           `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	Path        string         `json:"path,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Coded creates a domain error whose message is the code itself,
// mirroring handlers that report a bare code.
func Coded(code string) *Error {
	return &Error{Kind: Kind(code), Message: code}
}

// Internal creates an internal error with the canonical opaque message.
func Internal() *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error"}
}

// NotFound creates a not-found error for path with optional suggestions.
func NotFound(path string, suggestions []string) *Error {
	return &Error{
		Kind:        KindNotFound,
		Message:     fmt.Sprintf("Procedure not found: %s", path),
		Path:        path,
		Suggestions: suggestions,
	}
}

// InvalidPath creates an invalid-path error.
func InvalidPath(path string) *Error {
	return &Error{
		Kind:    KindInvalidPath,
		Message: fmt.Sprintf("Invalid procedure path: %q", path),
		Path:    path,
	}
}

// Validation creates a validation error with messages grouped by
// dotted field path.
func Validation(grouped map[string][]string) *Error {
	details := make(map[string]any, len(grouped))
	for path, msgs := range grouped {
		details[path] = msgs
	}
	return &Error{
		Kind:    KindValidation,
		Message: "Validation failed",
		Details: details,
	}
}

// Timeout creates a per-call timeout error.
func Timeout() *Error {
	return &Error{Kind: KindTimeout, Message: "Procedure timed out"}
}

// BatchTooLarge creates a batch-size error.
func BatchTooLarge(size, limit int) *Error {
	return &Error{
		Kind:    KindBatchTooLarge,
		Message: fmt.Sprintf("Batch of %d calls exceeds the limit of %d", size, limit),
	}
}

// From converts any error into an *Error. A *Error passes through
// unchanged so domain kinds survive the trip; other errors become
// internal errors carrying the original message.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Format renders the error for logs and CLI output: the kind, message,
// and any grouped validation details, one path per line.
func Format(e *Error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " (path: %s)", e.Path)
	}
	for path, msgs := range e.Details {
		fmt.Fprintf(&b, "\n  %s: %v", path, msgs)
	}
	if len(e.Suggestions) > 0 {
		fmt.Fprintf(&b, "\n  did you mean: %s", strings.Join(e.Suggestions, ", "))
	}
	return b.String()
}
