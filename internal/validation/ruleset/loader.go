// Package ruleset loads the data-driven field and rule configuration
// consumed by the validation engine. Rule sets evolve independently of the
// engine, so unrecognized rule ids are kept but flagged; the engine skips
// them at evaluation time.
package ruleset

import (
	"errors"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	validation "fieldlog/internal/validation/domain"
)

// File is the on-disk rule-set document.
type File struct {
	Fields []validation.FieldSpec `yaml:"fields"`
	Rules  []validation.CrossRule `yaml:"rules"`
}

// ErrNoFields is returned when a rule set declares no fields.
var ErrNoFields = errors.New("ruleset: no fields declared")

// Load reads and parses a rule-set file.
func Load(path string, logger *log.Logger) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("ruleset: read %s: %w", path, err)
	}
	return Parse(data, logger)
}

// Parse decodes a rule-set document and resolves rule kinds. Structural
// defects (missing keys, bad operators) fail hard; unknown rule ids fail
// soft and are logged.
func Parse(data []byte, logger *log.Logger) (File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return File{}, fmt.Errorf("ruleset: parse: %w", err)
	}
	if len(file.Fields) == 0 {
		return File{}, ErrNoFields
	}

	seen := make(map[string]bool, len(file.Fields))
	for i, spec := range file.Fields {
		if spec.Key == "" {
			return File{}, fmt.Errorf("ruleset: field %d has no key", i)
		}
		if seen[spec.Key] {
			return File{}, fmt.Errorf("ruleset: duplicate field key %q", spec.Key)
		}
		seen[spec.Key] = true
		if spec.Type == "" {
			file.Fields[i].Type = validation.FieldTypeText
		}
		if spec.DisplayWhen != nil && !spec.DisplayWhen.Operator.Valid() {
			return File{}, fmt.Errorf("ruleset: field %q has invalid condition operator %q", spec.Key, spec.DisplayWhen.Operator)
		}
	}

	for i, rule := range file.Rules {
		if rule.ID == "" {
			return File{}, fmt.Errorf("ruleset: rule %d has no id", i)
		}
		kind := validation.KindForRuleID(rule.ID)
		file.Rules[i].Kind = kind
		if kind == validation.RuleKindUnknown && logger != nil {
			logger.Printf("ruleset: unknown rule id %q, it will be skipped", rule.ID)
		}
		if rule.DisplayWhen != nil && !rule.DisplayWhen.Operator.Valid() {
			return File{}, fmt.Errorf("ruleset: rule %q has invalid condition operator %q", rule.ID, rule.DisplayWhen.Operator)
		}
	}

	return file, nil
}
