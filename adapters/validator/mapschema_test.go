package validator

import (
	"testing"

	"github.com/artpar/rpcgate/core/schema"
)

func f64(v float64) *float64 { return &v }

func userSchema() *MapSchema {
	return NewMapSchema(map[string]Field{
		"id":    {Type: TypeString, Required: true},
		"email": {Type: TypeEmail},
		"age":   {Type: TypeInt, Min: f64(0), Max: f64(150)},
		"role":  {Type: TypeEnum, Values: []string{"admin", "member"}, Default: "member"},
	})
}

func errorsByPath(errs []schema.FieldError) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.DottedPath()] = e.Message
	}
	return out
}

func TestMapSchema_Parse(t *testing.T) {
	typed, errs := userSchema().Parse(map[string]any{
		"id":    "42",
		"email": "alice@example.com",
		"age":   "30",
	})
	if errs != nil {
		t.Fatalf("Parse() errors = %v", errs)
	}

	m := typed.(map[string]any)
	if m["id"] != "42" {
		t.Errorf("id = %v", m["id"])
	}
	if m["age"] != int64(30) {
		t.Errorf("age = %v (%T), want coerced int64", m["age"], m["age"])
	}
	if m["role"] != "member" {
		t.Errorf("role = %v, want default applied", m["role"])
	}
}

func TestMapSchema_Required(t *testing.T) {
	_, errs := userSchema().Parse(map[string]any{})
	byPath := errorsByPath(errs)
	if byPath["id"] != "is required" {
		t.Errorf("errors = %v", byPath)
	}
	if _, hasRole := byPath["role"]; hasRole {
		t.Error("defaulted field must not be required")
	}
}

func TestMapSchema_UnknownFieldStrict(t *testing.T) {
	_, errs := userSchema().Parse(map[string]any{"id": "1", "bogus": true})
	if errorsByPath(errs)["bogus"] != "unknown field" {
		t.Errorf("errors = %v", errs)
	}
}

func TestMapSchema_LenientPassesUnknown(t *testing.T) {
	s := NewMapSchema(map[string]Field{
		"id": {Type: TypeString, Required: true},
	}, Lenient())

	typed, errs := s.Parse(map[string]any{"id": "1", "extra": "kept"})
	if errs != nil {
		t.Fatalf("Parse() errors = %v", errs)
	}
	if typed.(map[string]any)["extra"] != "kept" {
		t.Error("lenient mode should pass unknown fields through")
	}
}

func TestMapSchema_Coercion(t *testing.T) {
	s := NewMapSchema(map[string]Field{
		"count":  {Type: TypeInt},
		"ratio":  {Type: TypeFloat},
		"active": {Type: TypeBool},
	})

	tests := []struct {
		name  string
		raw   map[string]any
		check func(m map[string]any) bool
	}{
		{"json_number_to_int", map[string]any{"count": float64(7)}, func(m map[string]any) bool { return m["count"] == int64(7) }},
		{"string_to_int", map[string]any{"count": "7"}, func(m map[string]any) bool { return m["count"] == int64(7) }},
		{"string_to_float", map[string]any{"ratio": "2.5"}, func(m map[string]any) bool { return m["ratio"] == 2.5 }},
		{"int_to_float", map[string]any{"ratio": 2}, func(m map[string]any) bool { return m["ratio"] == 2.0 }},
		{"string_to_bool", map[string]any{"active": "true"}, func(m map[string]any) bool { return m["active"] == true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typed, errs := s.Parse(tt.raw)
			if errs != nil {
				t.Fatalf("Parse() errors = %v", errs)
			}
			if !tt.check(typed.(map[string]any)) {
				t.Errorf("typed = %v", typed)
			}
		})
	}
}

func TestMapSchema_CoercionFailures(t *testing.T) {
	s := NewMapSchema(map[string]Field{
		"count":  {Type: TypeInt},
		"active": {Type: TypeBool},
	})

	tests := []map[string]any{
		{"count": "seven"},
		{"count": 1.5},
		{"active": "yes please"},
		{"count": []any{}},
	}
	for _, raw := range tests {
		if _, errs := s.Parse(raw); errs == nil {
			t.Errorf("Parse(%v) accepted bad input", raw)
		}
	}
}

func TestMapSchema_TypeValidation(t *testing.T) {
	s := NewMapSchema(map[string]Field{
		"email": {Type: TypeEmail},
		"site":  {Type: TypeURL},
		"uid":   {Type: TypeUUID},
	})

	_, errs := s.Parse(map[string]any{
		"email": "not-an-email",
		"site":  "::nope",
		"uid":   "1234",
	})
	byPath := errorsByPath(errs)
	if len(byPath) != 3 {
		t.Fatalf("errors = %v", byPath)
	}
	if byPath["uid"] != "invalid UUID format" {
		t.Errorf("uid error = %q", byPath["uid"])
	}

	if _, errs := s.Parse(map[string]any{
		"email": "a@b.co",
		"site":  "https://example.com/x",
		"uid":   "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	}); errs != nil {
		t.Errorf("valid input rejected: %v", errs)
	}
}

func TestMapSchema_Constraints(t *testing.T) {
	s := NewMapSchema(map[string]Field{
		"age":  {Type: TypeInt, Min: f64(18), Max: f64(99)},
		"name": {Type: TypeString, Min: f64(2), Max: f64(5)},
		"code": {Type: TypeString, Pattern: `[A-Z]{3}-\d+`},
	})

	if _, errs := s.Parse(map[string]any{"age": 17}); errs == nil {
		t.Error("age below min accepted")
	}
	if _, errs := s.Parse(map[string]any{"age": 100}); errs == nil {
		t.Error("age above max accepted")
	}
	if _, errs := s.Parse(map[string]any{"name": "x"}); errs == nil {
		t.Error("short string accepted")
	}
	if _, errs := s.Parse(map[string]any{"code": "abc-1"}); errs == nil {
		t.Error("pattern mismatch accepted")
	}
	if _, errs := s.Parse(map[string]any{"age": 30, "name": "bob", "code": "ABC-12"}); errs != nil {
		t.Errorf("valid input rejected: %v", errs)
	}
}

func TestMapSchema_JSONSchema(t *testing.T) {
	doc := userSchema().JSONSchema()
	if doc["type"] != "object" {
		t.Errorf("type = %v", doc["type"])
	}
	props := doc["properties"].(map[string]any)
	if props["age"].(map[string]any)["type"] != "integer" {
		t.Errorf("age prop = %v", props["age"])
	}
	required, _ := doc["required"].([]string)
	if len(required) != 1 || required[0] != "id" {
		t.Errorf("required = %v", required)
	}
}

func TestNewMapSchema_PanicsOnBadDeclaration(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for enum without values")
		}
	}()
	NewMapSchema(map[string]Field{"x": {Type: TypeEnum}})
}
