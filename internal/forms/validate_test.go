package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredEmailRoundTrip(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{ID: "email", Type: TypeEmail, Required: true},
	}}

	res := Validate(schema, Answers{})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "email")

	res = Validate(schema, Answers{"email": "not-an-email"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "email")

	res = Validate(schema, Answers{"email": "a@b.com"})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestConditionalVisibility(t *testing.T) {
	schema := &Schema{Fields: []Field{
		{ID: "F1", Type: TypeDropdown, Options: []string{"yes", "no"}},
		{ID: "F2", Type: TypeShortText, Required: true, Conditional: &Conditional{
			Show:       true,
			Conditions: []Condition{{FieldID: "F1", Operator: OpEquals, Value: "yes"}},
		}},
	}}

	// F1 = yes: F2 visible and enforced.
	res := Validate(schema, Answers{"F1": "yes"})
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "F2")

	visible := VisibleFields(schema, Answers{"F1": "yes"})
	require.Len(t, visible, 2)

	// F1 = no or absent: F2 invisible, never blocks validity.
	for _, answers := range []Answers{{"F1": "no"}, {}} {
		res = Validate(schema, answers)
		assert.True(t, res.Valid)
		visible = VisibleFields(schema, answers)
		require.Len(t, visible, 1)
		assert.Equal(t, "F1", visible[0].ID)
	}
}

func TestAndSemantics(t *testing.T) {
	field := Field{ID: "F3", Conditional: &Conditional{
		Show: true,
		Conditions: []Condition{
			{FieldID: "F1", Operator: OpEquals, Value: "yes"},
			{FieldID: "F2", Operator: OpIsNotEmpty},
		},
	}}

	assert.True(t, IsVisible(field, Answers{"F1": "yes", "F2": "x"}))
	assert.False(t, IsVisible(field, Answers{"F1": "yes"}))
	assert.False(t, IsVisible(field, Answers{"F2": "x"}))
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name   string
		cond   Condition
		answer any
		want   bool
	}{
		{"equals scalar", Condition{Operator: OpEquals, Value: "a"}, "a", true},
		{"equals scalar miss", Condition{Operator: OpEquals, Value: "a"}, "b", false},
		{"equals membership", Condition{Operator: OpEquals, Value: "a"}, []string{"b", "a"}, true},
		{"equals membership miss", Condition{Operator: OpEquals, Value: "a"}, []string{"b", "c"}, false},
		{"equals any slice", Condition{Operator: OpEquals, Value: "a"}, []any{"b", "a"}, true},
		{"not_equals scalar", Condition{Operator: OpNotEquals, Value: "a"}, "b", true},
		{"not_equals membership", Condition{Operator: OpNotEquals, Value: "a"}, []string{"a", "b"}, false},
		{"contains case-insensitive", Condition{Operator: OpContains, Value: "WORLD"}, "hello world", true},
		{"contains miss", Condition{Operator: OpContains, Value: "mars"}, "hello world", false},
		{"is_empty nil", Condition{Operator: OpIsEmpty}, nil, true},
		{"is_empty blank", Condition{Operator: OpIsEmpty}, "   ", true},
		{"is_empty array", Condition{Operator: OpIsEmpty}, []string{}, true},
		{"is_empty full array", Condition{Operator: OpIsEmpty}, []string{"x"}, false},
		{"is_not_empty", Condition{Operator: OpIsNotEmpty}, "x", true},
		{"is_not_empty nil", Condition{Operator: OpIsNotEmpty}, nil, false},
		{"unknown operator", Condition{Operator: "between"}, "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, holds(tt.cond, tt.answer))
		})
	}
}

func TestInvertedShow(t *testing.T) {
	field := Field{ID: "F2", Conditional: &Conditional{
		Show:       false,
		Conditions: []Condition{{FieldID: "F1", Operator: OpEquals, Value: "yes"}},
	}}

	assert.False(t, IsVisible(field, Answers{"F1": "yes"}))
	assert.True(t, IsVisible(field, Answers{"F1": "no"}))
}

func TestTypeChecks(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		value string
		valid bool
	}{
		{"good email", Field{ID: "f", Type: TypeEmail}, "guest@example.com", true},
		{"bad email", Field{ID: "f", Type: TypeEmail}, "guest@", false},
		{"name-addr form rejected", Field{ID: "f", Type: TypeEmail}, "Guest <guest@example.com>", false},
		{"good url", Field{ID: "f", Type: TypeURL}, "https://example.com/page", true},
		{"relative url", Field{ID: "f", Type: TypeURL}, "/page", false},
		{"schemeless url", Field{ID: "f", Type: TypeURL}, "example.com", false},
		{"good phone", Field{ID: "f", Type: TypePhone}, "+1 (555) 010-2030", true},
		{"alpha phone", Field{ID: "f", Type: TypePhone}, "call me", false},
		{"symbols-only phone", Field{ID: "f", Type: TypePhone}, "+()-", false},
		{"date passes through", Field{ID: "f", Type: TypeDate}, "2026-03-02", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := &Schema{Fields: []Field{tt.field}}
			res := Validate(schema, Answers{"f": tt.value})
			assert.Equal(t, tt.valid, res.Valid)
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	schema := &Schema{Fields: []Field{{ID: "email", Type: TypeEmail, Required: true}}}
	answers := Answers{"email": "a@b.com"}

	first := Validate(schema, answers)
	second := Validate(schema, answers)
	assert.Equal(t, first, second)
	assert.Equal(t, Answers{"email": "a@b.com"}, answers)
}
