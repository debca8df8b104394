package validator

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/artpar/rpcgate/core/schema"
)

// StructSchema decodes raw input into T and runs go-playground
// validator struct tags over it. The typed value handed to the handler
// is a T, not a map.
type StructSchema[T any] struct {
	validate *playground.Validate
}

// NewStructSchema creates a struct-tag schema for T. Field names in
// validation errors follow the struct's json tags.
func NewStructSchema[T any]() *StructSchema[T] {
	v := playground.New(playground.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &StructSchema[T]{validate: v}
}

// Parse decodes and validates raw input.
func (s *StructSchema[T]) Parse(raw map[string]any) (any, []schema.FieldError) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, []schema.FieldError{{Message: "input is not encodable"}}
	}

	var value T
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&value); err != nil {
		return nil, []schema.FieldError{{Message: "input does not match the expected shape"}}
	}

	if err := s.validate.Struct(value); err != nil {
		verrs, ok := err.(playground.ValidationErrors)
		if !ok {
			return nil, []schema.FieldError{{Message: err.Error()}}
		}
		errs := make([]schema.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			errs = append(errs, schema.FieldError{
				Path:    fieldPath(fe),
				Message: failureMessage(fe),
			})
		}
		return nil, errs
	}

	return value, nil
}

// fieldPath derives the error path from the validator namespace,
// dropping the root struct name and lowercasing segments to match the
// wire casing of json bodies.
func fieldPath(fe playground.FieldError) []string {
	segments := strings.Split(fe.Namespace(), ".")
	if len(segments) > 1 {
		segments = segments[1:]
	}
	for i, s := range segments {
		segments[i] = strings.ToLower(s)
	}
	return segments
}

func failureMessage(fe playground.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "invalid email address"
	case "url":
		return "invalid URL"
	case "uuid":
		return "invalid UUID format"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return "failed validation rule " + fe.Tag()
}

// Ensure interface compliance.
var _ schema.Schema = (*StructSchema[string])(nil)
