// Package validator provides bundled schema.Schema implementations:
// a declarative field-map schema with coercion and constraints, and a
// struct-tag schema backed by go-playground/validator. The dispatch
// engine only sees the schema.Schema interface; any external
// validation engine can replace these.
package validator

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/artpar/rpcgate/core/schema"
)

// FieldType enumerates the value types a map-schema field accepts.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
	TypeEmail  FieldType = "email"
	TypeURL    FieldType = "url"
	TypeUUID   FieldType = "uuid"
	TypeEnum   FieldType = "enum"
	TypeAny    FieldType = "any"
)

// Field declares one map-schema field.
type Field struct {
	// Type is the accepted value type.
	Type FieldType

	// Required rejects input missing this field, unless Default is set.
	Required bool

	// Default fills the field when absent.
	Default any

	// Values lists the accepted values for enum fields.
	Values []string

	// Min and Max bound numeric values, or string length for string
	// types.
	Min *float64
	Max *float64

	// Pattern is an anchored regular expression string values must
	// match.
	Pattern string
}

// MapSchema validates string-keyed input against declared fields, with
// coercion: numeric strings parse into numbers, "true"/"false" into
// booleans, JSON float64s with no fraction into ints.
type MapSchema struct {
	fields   map[string]Field
	strict   bool
	patterns map[string]*regexp.Regexp
}

// Option configures a MapSchema.
type Option func(*MapSchema)

// Lenient allows unknown input fields, passing them through untouched.
// The default is strict: unknown fields are validation errors.
func Lenient() Option {
	return func(s *MapSchema) { s.strict = false }
}

// NewMapSchema builds a MapSchema. Invalid field declarations (bad
// pattern, enum without values) panic: schemas are declared at load
// time and a broken declaration is a programming error.
func NewMapSchema(fields map[string]Field, opts ...Option) *MapSchema {
	s := &MapSchema{
		fields:   fields,
		strict:   true,
		patterns: make(map[string]*regexp.Regexp),
	}
	for _, opt := range opts {
		opt(s)
	}
	for name, f := range fields {
		if f.Type == TypeEnum && len(f.Values) == 0 {
			panic(fmt.Sprintf("validator: enum field %q has no values", name))
		}
		if f.Pattern != "" {
			re, err := regexp.Compile("^(?:" + f.Pattern + ")$")
			if err != nil {
				panic(fmt.Sprintf("validator: field %q pattern: %v", name, err))
			}
			s.patterns[name] = re
		}
	}
	return s
}

// Parse validates and coerces raw input.
func (s *MapSchema) Parse(raw map[string]any) (any, []schema.FieldError) {
	var errs []schema.FieldError
	typed := make(map[string]any, len(raw))

	if s.strict {
		for name := range raw {
			if _, known := s.fields[name]; !known {
				errs = append(errs, schema.FieldError{
					Path:    []string{name},
					Message: "unknown field",
				})
			}
		}
	} else {
		for name, value := range raw {
			if _, known := s.fields[name]; !known {
				typed[name] = value
			}
		}
	}

	for name, field := range s.fields {
		value, present := raw[name]

		if !present || value == nil {
			if field.Default != nil {
				typed[name] = field.Default
				continue
			}
			if field.Required {
				errs = append(errs, schema.FieldError{
					Path:    []string{name},
					Message: "is required",
				})
			}
			continue
		}

		coerced, err := s.coerce(name, field, value)
		if err != nil {
			errs = append(errs, *err)
			continue
		}
		if cerr := s.constrain(name, field, coerced); cerr != nil {
			errs = append(errs, *cerr)
			continue
		}
		typed[name] = coerced
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return typed, nil
}

// coerce converts value into the field's type, accepting the string
// renderings produced by query parameters and loosely typed callers.
func (s *MapSchema) coerce(name string, field Field, value any) (any, *schema.FieldError) {
	fail := func(msg string) (any, *schema.FieldError) {
		return nil, &schema.FieldError{Path: []string{name}, Message: msg}
	}

	switch field.Type {
	case TypeAny:
		return value, nil

	case TypeString, TypeEmail, TypeURL, TypeUUID, TypeEnum:
		str, ok := value.(string)
		if !ok {
			return fail("must be a string")
		}
		switch field.Type {
		case TypeEmail:
			if _, err := mail.ParseAddress(str); err != nil {
				return fail("invalid email address")
			}
		case TypeURL:
			if _, err := url.ParseRequestURI(str); err != nil {
				return fail("invalid URL")
			}
		case TypeUUID:
			if !uuidRE.MatchString(str) {
				return fail("invalid UUID format")
			}
		case TypeEnum:
			if !containsString(field.Values, str) {
				return fail("must be one of: " + strings.Join(field.Values, ", "))
			}
		}
		return str, nil

	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v != float64(int64(v)) {
				return fail("must be an integer")
			}
			return int64(v), nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fail("must be an integer")
			}
			return n, nil
		}
		return fail("must be an integer")

	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fail("must be a number")
			}
			return f, nil
		}
		return fail("must be a number")

	case TypeBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fail("must be a boolean")
			}
			return b, nil
		}
		return fail("must be a boolean")
	}

	return fail(fmt.Sprintf("unsupported field type %q", field.Type))
}

// constrain applies min/max/pattern to an already coerced value.
func (s *MapSchema) constrain(name string, field Field, value any) *schema.FieldError {
	fail := func(msg string) *schema.FieldError {
		return &schema.FieldError{Path: []string{name}, Message: msg}
	}

	if str, ok := value.(string); ok {
		n := float64(len(str))
		if field.Min != nil && n < *field.Min {
			return fail(fmt.Sprintf("must be at least %d characters", int(*field.Min)))
		}
		if field.Max != nil && n > *field.Max {
			return fail(fmt.Sprintf("must be at most %d characters", int(*field.Max)))
		}
		if re, ok := s.patterns[name]; ok && !re.MatchString(str) {
			return fail("has invalid format")
		}
		return nil
	}

	var n float64
	switch v := value.(type) {
	case int64:
		n = float64(v)
	case float64:
		n = v
	default:
		return nil
	}
	if field.Min != nil && n < *field.Min {
		return fail(fmt.Sprintf("must be >= %v", *field.Min))
	}
	if field.Max != nil && n > *field.Max {
		return fail(fmt.Sprintf("must be <= %v", *field.Max))
	}
	return nil
}

// JSONSchema renders the schema as a JSON Schema document for
// introspection consumers.
func (s *MapSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.fields))
	var required []string

	for name, f := range s.fields {
		prop := map[string]any{}
		switch f.Type {
		case TypeString, TypeEnum:
			prop["type"] = "string"
		case TypeEmail:
			prop["type"] = "string"
			prop["format"] = "email"
		case TypeURL:
			prop["type"] = "string"
			prop["format"] = "uri"
		case TypeUUID:
			prop["type"] = "string"
			prop["format"] = "uuid"
		case TypeInt:
			prop["type"] = "integer"
		case TypeFloat:
			prop["type"] = "number"
		case TypeBool:
			prop["type"] = "boolean"
		}
		if f.Type == TypeEnum {
			prop["enum"] = f.Values
		}
		if f.Min != nil {
			prop["minimum"] = *f.Min
		}
		if f.Max != nil {
			prop["maximum"] = *f.Max
		}
		if f.Default != nil {
			prop["default"] = f.Default
		}
		properties[name] = prop
		if f.Required && f.Default == nil {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": !s.strict,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}

var uuidRE = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

// Ensure interface compliance.
var (
	_ schema.Schema      = (*MapSchema)(nil)
	_ schema.JSONSchemer = (*MapSchema)(nil)
)
