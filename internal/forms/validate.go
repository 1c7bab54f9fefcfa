package forms

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

// Result is the outcome of validating an answer set.
type Result struct {
	Valid  bool
	Errors map[string]string // field id -> message
}

// VisibleFields returns the schema's fields that are currently visible
// given the answers, in schema order.
func VisibleFields(schema *Schema, answers Answers) []Field {
	if schema == nil {
		return nil
	}
	visible := make([]Field, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		if IsVisible(field, answers) {
			visible = append(visible, field)
		}
	}
	return visible
}

// IsVisible evaluates a field's conditional rule. Fields without a rule
// are always visible; with a rule, all conditions must hold.
func IsVisible(field Field, answers Answers) bool {
	cond := field.Conditional
	if cond == nil || len(cond.Conditions) == 0 {
		return true
	}
	all := true
	for _, c := range cond.Conditions {
		if !holds(c, answers[c.FieldID]) {
			all = false
			break
		}
	}
	// Show=true means "show when all conditions hold"; Show=false
	// inverts that (hide when they hold).
	if cond.Show {
		return all
	}
	return !all
}

func holds(c Condition, answer any) bool {
	switch c.Operator {
	case OpEquals:
		return matches(answer, c.Value)
	case OpNotEquals:
		return !matches(answer, c.Value)
	case OpContains:
		needle := strings.ToLower(c.Value)
		for _, v := range values(answer) {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false
	case OpIsEmpty:
		return isEmpty(answer)
	case OpIsNotEmpty:
		return !isEmpty(answer)
	default:
		return false
	}
}

// matches treats multi-value answers as a membership test and scalars
// as exact equality.
func matches(answer any, want string) bool {
	for _, v := range values(answer) {
		if v == want {
			return true
		}
	}
	return false
}

// values flattens an answer into its string values.
func values(answer any) []string {
	switch v := answer.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}

func isEmpty(answer any) bool {
	switch v := answer.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return false
	}
}

// Validate checks the answers against the schema's currently visible
// fields. Hidden fields never produce errors, even when required.
func Validate(schema *Schema, answers Answers) Result {
	result := Result{Valid: true, Errors: make(map[string]string)}
	if schema == nil {
		return result
	}
	for _, field := range VisibleFields(schema, answers) {
		answer := answers[field.ID]
		if isEmpty(answer) {
			if field.Required {
				result.Errors[field.ID] = "this field is required"
			}
			continue
		}
		if msg := checkType(field, answer); msg != "" {
			result.Errors[field.ID] = msg
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func checkType(field Field, answer any) string {
	value, ok := answer.(string)
	if !ok {
		// Multi-value answers carry no per-type checks.
		return ""
	}
	switch field.Type {
	case TypeEmail:
		if !ValidEmail(value) {
			return "enter a valid email address"
		}
	case TypeURL:
		if !ValidURL(value) {
			return "enter a valid URL"
		}
	case TypePhone:
		if !ValidPhone(value) {
			return "enter a valid phone number"
		}
	}
	return ""
}

// ValidEmail reports whether value has a standard email shape.
func ValidEmail(value string) bool {
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	// Reject the name-addr form ("Name <a@b.com>"); we want a bare address.
	return addr.Address == strings.TrimSpace(value) && strings.Contains(addr.Address, ".")
}

// ValidURL reports whether value parses as an absolute URL.
func ValidURL(value string) bool {
	u, err := url.Parse(strings.TrimSpace(value))
	return err == nil && u.IsAbs() && u.Host != ""
}

// ValidPhone reports whether value contains only digits, whitespace,
// and the characters - + ( ).
func ValidPhone(value string) bool {
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '\t' || r == '-' || r == '+' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits > 0
}
