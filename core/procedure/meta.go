package procedure

// Meta is a procedure's metadata mapping. Recognised keys have typed
// accessors below; unknown keys are preserved but ignored by the
// engine.
type Meta map[string]any

// Recognised metadata keys.
const (
	MetaDescription    = "description"
	MetaSummary        = "summary"
	MetaTags           = "tags"
	MetaExamples       = "examples"
	MetaDeprecated     = "deprecated"
	MetaOperationID    = "operation_id"
	MetaValidateOutput = "validate_output"
)

// Description returns the description option, or "".
func (m Meta) Description() string {
	s, _ := m[MetaDescription].(string)
	return s
}

// Summary returns the summary option, or "".
func (m Meta) Summary() string {
	s, _ := m[MetaSummary].(string)
	return s
}

// Tags returns the tags option, or nil.
func (m Meta) Tags() []string {
	switch v := m[MetaTags].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

// Examples returns the examples option, or nil.
func (m Meta) Examples() []any {
	v, _ := m[MetaExamples].([]any)
	return v
}

// Deprecated reports whether the procedure is deprecated and the
// deprecation note, if one was given instead of a bare flag.
func (m Meta) Deprecated() (bool, string) {
	switch v := m[MetaDeprecated].(type) {
	case bool:
		return v, ""
	case string:
		return true, v
	}
	return false, ""
}

// OperationID returns the operation_id option, or "".
func (m Meta) OperationID() string {
	s, _ := m[MetaOperationID].(string)
	return s
}

// ValidateOutput returns the validate_output option and whether it was
// set. The executor consults this between per-call options and the
// process-wide default.
func (m Meta) ValidateOutput() (value, ok bool) {
	v, ok := m[MetaValidateOutput].(bool)
	return v, ok
}
