// Package forms implements the schema-driven dynamic booking form:
// conditional field visibility and per-field validation. Everything in
// this package is pure: deterministic for a given schema and answer
// set, no side effects.
package forms

// FieldType enumerates supported dynamic field kinds.
type FieldType string

const (
	TypeShortText      FieldType = "short_text"
	TypeLongText       FieldType = "long_text"
	TypeEmail          FieldType = "email"
	TypePhone          FieldType = "phone"
	TypeDropdown       FieldType = "dropdown"
	TypeMultipleChoice FieldType = "multiple_choice"
	TypeCheckboxes     FieldType = "checkboxes"
	TypeDate           FieldType = "date"
	TypeURL            FieldType = "url"
)

// Operator enumerates conditional-visibility tests.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"
)

// Schema is an ordered list of dynamic fields.
type Schema struct {
	Fields []Field `json:"fields"`
}

// Field is one question in a dynamic booking form.
type Field struct {
	ID          string       `json:"id"`
	Type        FieldType    `json:"type"`
	Label       string       `json:"label,omitempty"`
	Required    bool         `json:"required"`
	Options     []string     `json:"options,omitempty"`
	Conditional *Conditional `json:"conditional,omitempty"`
}

// Conditional gates a field's visibility on other answers. The field is
// visible only if all conditions hold.
type Conditional struct {
	Show       bool        `json:"show"`
	Conditions []Condition `json:"conditions"`
}

// Condition tests one other field's answer.
type Condition struct {
	FieldID  string   `json:"field_id"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
}

// Answers maps field id to the guest's answer: a string, or a []string
// / []any for multi-value fields.
type Answers map[string]any
