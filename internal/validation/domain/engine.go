package validation

import (
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	equipment "fieldlog/internal/equipment/domain"
	readings "fieldlog/internal/readings/domain"
)

// datetimeLayouts accepted for datetime fields.
var datetimeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02", "15:04"}

// Engine is the two-phase rule evaluator. Phase 1 runs per-field checks in
// field declaration order; phase 2 runs cross-field rules in registration
// order. The engine is pure given its inputs and never mutates values.
type Engine struct {
	rules  []CrossRule
	logger *log.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewEngine constructs an engine over a fixed rule registration order.
func NewEngine(rules []CrossRule, logger *log.Logger) *Engine {
	return &Engine{
		rules:    rules,
		patterns: make(map[string]*regexp.Regexp),
		logger:   logger,
	}
}

// ValidateField runs the phase 1 checks for one visible field. Any failure
// here is blocking.
func (e *Engine) ValidateField(spec FieldSpec, value readings.FieldValue, values map[string]readings.FieldValue, equip equipment.Context) FieldResult {
	_ = values
	_ = equip

	if value.IsEmpty() {
		if spec.Required {
			return FieldResult{Error: fmt.Sprintf("%s is required", spec.Name())}
		}
		return FieldResult{}
	}

	switch spec.Type {
	case FieldTypeNumber:
		num, ok := numericValue(value)
		if !ok {
			return FieldResult{Error: fmt.Sprintf("%s must be numeric", spec.Name())}
		}
		if spec.Min != nil && num < *spec.Min {
			return FieldResult{Error: fmt.Sprintf("%s must be at least %v", spec.Name(), *spec.Min)}
		}
		if spec.Max != nil && num > *spec.Max {
			return FieldResult{Error: fmt.Sprintf("%s must be at most %v", spec.Name(), *spec.Max)}
		}
	case FieldTypeText:
		text := textValue(value)
		if spec.MaxLength > 0 && utf8.RuneCountInString(text) > spec.MaxLength {
			return FieldResult{Error: fmt.Sprintf("%s must be at most %d characters", spec.Name(), spec.MaxLength)}
		}
		if spec.Pattern != "" {
			pattern, err := e.compiledPattern(spec.Pattern)
			if err != nil {
				// Bad pattern is a rule-set defect; skip the check rather
				// than block data entry.
				e.printf("validation: invalid pattern for field %q: %v", spec.Key, err)
			} else if !pattern.MatchString(text) {
				return FieldResult{Error: fmt.Sprintf("%s has an invalid format", spec.Name())}
			}
		}
	case FieldTypeSelect:
		text := textValue(value)
		for _, option := range spec.Options {
			if text == option {
				return FieldResult{}
			}
		}
		return FieldResult{Error: fmt.Sprintf("%s must be one of: %s", spec.Name(), strings.Join(spec.Options, ", "))}
	case FieldTypeDateTime:
		text := textValue(value)
		if !parseableDateTime(text) {
			return FieldResult{Error: fmt.Sprintf("%s is not a valid date or time", spec.Name())}
		}
	}
	return FieldResult{}
}

// ValidateForm runs both validation phases over the full field set and
// returns a fresh result.
func (e *Engine) ValidateForm(specs []FieldSpec, values map[string]readings.FieldValue, equip equipment.Context) Result {
	result := NewResult()
	failed := make(map[string]bool)

	for _, spec := range specs {
		if !spec.Visible(values) {
			continue
		}
		fieldResult := e.ValidateField(spec, values[spec.Key], values, equip)
		if fieldResult.Blocking() {
			result.AddError(spec.Key, fieldResult.Error)
			failed[spec.Key] = true
		}
		if fieldResult.Warning != "" {
			result.AddWarning(spec.Key, fieldResult.Warning)
		}
	}

	for _, rule := range e.rules {
		if rule.Kind == RuleKindUnknown || !KnownKind(rule.Kind) {
			e.printf("validation: skipping unrecognized rule id %q", rule.ID)
			continue
		}
		if rule.DisplayWhen != nil && !rule.DisplayWhen.Holds(values) {
			continue
		}
		if anyFailed(failed, rule.InvolvedFields()) {
			continue
		}
		field, ruleResult := rule.Evaluate(values, equip)
		if field == "" {
			continue
		}
		result.AddError(field, ruleResult.Error)
		result.AddWarning(field, ruleResult.Warning)
	}

	return result
}

// KnownKind reports whether the kind is a member of the closed rule set.
func KnownKind(kind RuleKind) bool {
	switch kind {
	case RuleKindEfficiency, RuleKindToxicGas, RuleKindFlammability,
		RuleKindTemperatureBand, RuleKindOutletExceedsInlet:
		return true
	default:
		return false
	}
}

func (e *Engine) compiledPattern(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if compiled, ok := e.patterns[pattern]; ok {
		return compiled, nil
	}
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.patterns[pattern] = compiled
	return compiled, nil
}

func (e *Engine) printf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func anyFailed(failed map[string]bool, fields []string) bool {
	for _, field := range fields {
		if failed[field] {
			return true
		}
	}
	return false
}

func parseableDateTime(text string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, text); err == nil {
			return true
		}
	}
	return false
}
