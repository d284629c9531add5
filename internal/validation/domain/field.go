package validation

import (
	"strconv"
	"strings"

	readings "fieldlog/internal/readings/domain"
)

// FieldType is the declared type of a measurement field.
type FieldType string

// Supported field types.
const (
	FieldTypeNumber   FieldType = "number"
	FieldTypeText     FieldType = "text"
	FieldTypeSelect   FieldType = "select"
	FieldTypeDateTime FieldType = "datetime"
)

// CondOperator compares a field value against a display-condition operand.
type CondOperator string

// Supported condition operators.
const (
	CondEquals         CondOperator = "eq"
	CondNotEquals      CondOperator = "neq"
	CondGreaterThan    CondOperator = "gt"
	CondGreaterOrEqual CondOperator = "gte"
	CondLessThan       CondOperator = "lt"
	CondLessOrEqual    CondOperator = "lte"
	CondIn             CondOperator = "in"
	CondContains       CondOperator = "contains"
)

// Valid returns true when the operator is supported.
func (o CondOperator) Valid() bool {
	switch o {
	case CondEquals, CondNotEquals, CondGreaterThan, CondGreaterOrEqual,
		CondLessThan, CondLessOrEqual, CondIn, CondContains:
		return true
	default:
		return false
	}
}

// Condition gates a field or cross-field rule on another field's value.
type Condition struct {
	Field    string       `yaml:"field"`
	Operator CondOperator `yaml:"operator"`
	Value    string       `yaml:"value,omitempty"`
	Values   []string     `yaml:"values,omitempty"`
	Number   *float64     `yaml:"number,omitempty"`
}

// Holds evaluates the condition against the current field values. A missing
// governing field makes the condition false, which hides the dependent field
// or skips the dependent rule.
func (c Condition) Holds(values map[string]readings.FieldValue) bool {
	value, ok := values[c.Field]
	if !ok || value.IsEmpty() {
		return false
	}

	switch c.Operator {
	case CondEquals:
		return c.matchesScalar(value)
	case CondNotEquals:
		return !c.matchesScalar(value)
	case CondGreaterThan, CondGreaterOrEqual, CondLessThan, CondLessOrEqual:
		num, ok := numericValue(value)
		if !ok || c.Number == nil {
			return false
		}
		switch c.Operator {
		case CondGreaterThan:
			return num > *c.Number
		case CondGreaterOrEqual:
			return num >= *c.Number
		case CondLessThan:
			return num < *c.Number
		default:
			return num <= *c.Number
		}
	case CondIn:
		text := textValue(value)
		for _, candidate := range c.Values {
			if text == candidate {
				return true
			}
		}
		return false
	case CondContains:
		return c.Value != "" && strings.Contains(textValue(value), c.Value)
	default:
		return false
	}
}

func (c Condition) matchesScalar(value readings.FieldValue) bool {
	if c.Number != nil {
		num, ok := numericValue(value)
		return ok && num == *c.Number
	}
	return textValue(value) == c.Value
}

// FieldSpec declares one measurement field and its per-field checks.
type FieldSpec struct {
	Key         string     `yaml:"key"`
	Label       string     `yaml:"label,omitempty"`
	Type        FieldType  `yaml:"type"`
	Required    bool       `yaml:"required,omitempty"`
	Min         *float64   `yaml:"min,omitempty"`
	Max         *float64   `yaml:"max,omitempty"`
	MaxLength   int        `yaml:"max_length,omitempty"`
	Pattern     string     `yaml:"pattern,omitempty"`
	Options     []string   `yaml:"options,omitempty"`
	DisplayWhen *Condition `yaml:"display_when,omitempty"`
}

// Visible reports whether the field is shown given the current values.
// Hidden fields are exempt from all validation.
func (s FieldSpec) Visible(values map[string]readings.FieldValue) bool {
	return s.DisplayWhen == nil || s.DisplayWhen.Holds(values)
}

// Name returns the human label, falling back to the field key.
func (s FieldSpec) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Key
}

// numericValue extracts a float from the value, parsing text when needed.
func numericValue(value readings.FieldValue) (float64, bool) {
	if value.Number != nil {
		return *value.Number, true
	}
	if value.Text != nil && *value.Text != "" {
		num, err := strconv.ParseFloat(strings.TrimSpace(*value.Text), 64)
		if err == nil {
			return num, true
		}
	}
	return 0, false
}

func textValue(value readings.FieldValue) string {
	if value.Text != nil {
		return *value.Text
	}
	if value.Number != nil {
		return strconv.FormatFloat(*value.Number, 'f', -1, 64)
	}
	return ""
}
