// Package schema defines the contract between the dispatch engine and
// the external validation engine. The core never validates input
// itself; it hands raw input to a Schema and receives either a typed
// value or a list of field errors. Bundled implementations live in
// adapters/validator.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema is an opaque validation handle supplied by a validator engine.
//
// Parse validates raw input with coercion enabled: string-keyed raw
// data (as decoded from JSON or form bodies) is converted into the
// schema's typed representation. On success it returns the typed value
// and a nil error slice; on failure the returned errors carry the path
// into the input that failed.
type Schema interface {
	Parse(raw map[string]any) (any, []FieldError)
}

// JSONSchemer is optionally implemented by schemas that can describe
// themselves as a JSON Schema document, for introspection consumers.
type JSONSchemer interface {
	JSONSchema() map[string]any
}

// FieldError is a single validation failure at a path into the input.
type FieldError struct {
	// Path is the sequence of segments into the input value.
	Path []string

	// Message is the human-oriented failure description.
	Message string
}

// DottedPath returns the error path joined with dots, "" for root.
func (e FieldError) DottedPath() string {
	return strings.Join(e.Path, ".")
}

func (e FieldError) String() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.DottedPath(), e.Message)
}

// Parse runs raw input through s. A nil schema accepts anything and
// yields the empty map, so procedures without a declared input schema
// still hand their handler a well-formed value.
func Parse(s Schema, raw map[string]any) (any, []FieldError) {
	if s == nil {
		return map[string]any{}, nil
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return s.Parse(raw)
}

// GroupByPath groups field errors by dotted path, the representation
// carried in validation error details.
func GroupByPath(errs []FieldError) map[string][]string {
	grouped := make(map[string][]string, len(errs))
	for _, e := range errs {
		key := e.DottedPath()
		grouped[key] = append(grouped[key], e.Message)
	}
	return grouped
}

// FormatErrors renders field errors as a stable, human-readable block,
// one dotted path per line. Used in diagnostics and logs.
func FormatErrors(errs []FieldError) string {
	grouped := GroupByPath(errs)
	paths := make([]string, 0, len(grouped))
	for p := range grouped {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteByte('\n')
		}
		label := p
		if label == "" {
			label = "(root)"
		}
		fmt.Fprintf(&b, "%s: %s", label, strings.Join(grouped[p], "; "))
	}
	return b.String()
}
