package schema

import (
	"testing"
)

// staticSchema returns fixed results for facade tests.
type staticSchema struct {
	typed any
	errs  []FieldError
}

func (s staticSchema) Parse(raw map[string]any) (any, []FieldError) {
	if s.errs != nil {
		return nil, s.errs
	}
	if s.typed != nil {
		return s.typed, nil
	}
	return raw, nil
}

func TestParse_NilSchema(t *testing.T) {
	typed, errs := Parse(nil, map[string]any{"ignored": true})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	m, ok := typed.(map[string]any)
	if !ok {
		t.Fatalf("typed = %T, want map", typed)
	}
	if len(m) != 0 {
		t.Errorf("nil schema should substitute the empty map, got %v", m)
	}
}

func TestParse_NilRaw(t *testing.T) {
	typed, errs := Parse(staticSchema{}, nil)
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if m, ok := typed.(map[string]any); !ok || len(m) != 0 {
		t.Errorf("nil raw should parse as empty map, got %v", typed)
	}
}

func TestParse_PassesThrough(t *testing.T) {
	want := []FieldError{{Path: []string{"id"}, Message: "required"}}
	_, errs := Parse(staticSchema{errs: want}, map[string]any{})
	if len(errs) != 1 || errs[0].Message != "required" {
		t.Errorf("errors not passed through: %v", errs)
	}
}

func TestGroupByPath(t *testing.T) {
	errs := []FieldError{
		{Path: []string{"user", "email"}, Message: "invalid email"},
		{Path: []string{"user", "email"}, Message: "too long"},
		{Path: []string{"id"}, Message: "required"},
		{Path: nil, Message: "unknown field"},
	}

	grouped := GroupByPath(errs)

	if len(grouped["user.email"]) != 2 {
		t.Errorf("user.email = %v, want 2 messages", grouped["user.email"])
	}
	if len(grouped["id"]) != 1 {
		t.Errorf("id = %v", grouped["id"])
	}
	if len(grouped[""]) != 1 {
		t.Errorf("root errors = %v", grouped[""])
	}
}

func TestFieldError_DottedPath(t *testing.T) {
	tests := []struct {
		name string
		path []string
		want string
	}{
		{"nested", []string{"a", "b", "c"}, "a.b.c"},
		{"single", []string{"id"}, "id"},
		{"root", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := FieldError{Path: tt.path}
			if got := e.DottedPath(); got != tt.want {
				t.Errorf("DottedPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatErrors_SortedAndGrouped(t *testing.T) {
	errs := []FieldError{
		{Path: []string{"b"}, Message: "second"},
		{Path: []string{"a"}, Message: "first"},
		{Path: []string{"a"}, Message: "also first"},
	}

	got := FormatErrors(errs)
	want := "a: first; also first\nb: second"
	if got != want {
		t.Errorf("FormatErrors() = %q, want %q", got, want)
	}
}
