package validation

import (
	"fmt"

	equipment "fieldlog/internal/equipment/domain"
	readings "fieldlog/internal/readings/domain"
)

// RuleKind is the closed set of cross-field rule variants.
type RuleKind string

// Known rule kinds. RuleKindUnknown marks an unrecognized rule id loaded
// from configuration; the engine logs and skips it instead of crashing, so
// rule sets can evolve ahead of the engine.
const (
	RuleKindEfficiency         RuleKind = "efficiency"
	RuleKindToxicGas           RuleKind = "toxic_gas"
	RuleKindFlammability       RuleKind = "flammability"
	RuleKindTemperatureBand    RuleKind = "temperature_band"
	RuleKindOutletExceedsInlet RuleKind = "outlet_exceeds_inlet"
	RuleKindUnknown            RuleKind = "unknown"
)

// Stable rule identifiers consumed from rule-set configuration.
const (
	RuleIDDestructionEfficiency = "destruction_efficiency"
	RuleIDToxicGasSafety        = "h2s_safety"
	RuleIDFlammability          = "lel_threshold"
	RuleIDTemperatureBand       = "operating_temperature"
	RuleIDSystemEfficiency      = "system_efficiency"
)

// KindForRuleID maps a configured rule id to its kind.
func KindForRuleID(id string) RuleKind {
	switch id {
	case RuleIDDestructionEfficiency:
		return RuleKindEfficiency
	case RuleIDToxicGasSafety:
		return RuleKindToxicGas
	case RuleIDFlammability:
		return RuleKindFlammability
	case RuleIDTemperatureBand:
		return RuleKindTemperatureBand
	case RuleIDSystemEfficiency:
		return RuleKindOutletExceedsInlet
	default:
		return RuleKindUnknown
	}
}

// CrossRule binds one rule kind to the measurement fields it reads.
// Thresholds are domain data supplied by the equipment context, never
// hard-coded here.
type CrossRule struct {
	ID   string   `yaml:"id"`
	Kind RuleKind `yaml:"-"`

	// Field bindings. Which ones are read depends on the kind.
	InletField  string `yaml:"inlet,omitempty"`
	OutletField string `yaml:"outlet,omitempty"`
	GasField    string `yaml:"gas,omitempty"`
	TempField   string `yaml:"temperature,omitempty"`

	DisplayWhen *Condition `yaml:"display_when,omitempty"`
}

// InvolvedFields lists the fields the rule reads. A rule is skipped when any
// involved field failed phase 1.
func (r CrossRule) InvolvedFields() []string {
	var fields []string
	for _, f := range []string{r.InletField, r.OutletField, r.GasField, r.TempField} {
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// Evaluate runs the rule against the current values and equipment context.
// It returns the field the verdict attaches to; an empty field means the
// rule did not apply.
func (r CrossRule) Evaluate(values map[string]readings.FieldValue, equip equipment.Context) (string, FieldResult) {
	switch r.Kind {
	case RuleKindEfficiency:
		return r.evaluateEfficiency(values, equip)
	case RuleKindToxicGas:
		return r.evaluateToxicGas(values, equip)
	case RuleKindFlammability:
		return r.evaluateFlammability(values, equip)
	case RuleKindTemperatureBand:
		return r.evaluateTemperatureBand(values, equip)
	case RuleKindOutletExceedsInlet:
		return r.evaluateOutletExceedsInlet(values)
	default:
		return "", FieldResult{}
	}
}

// evaluateEfficiency warns when destruction/removal efficiency
// (inlet − outlet) / inlet falls below the context minimum. Only computed
// when inlet is strictly positive.
func (r CrossRule) evaluateEfficiency(values map[string]readings.FieldValue, equip equipment.Context) (string, FieldResult) {
	inlet, okIn := numericValue(values[r.InletField])
	outlet, okOut := numericValue(values[r.OutletField])
	if !okIn || !okOut || inlet <= 0 {
		return "", FieldResult{}
	}
	efficiency := (inlet - outlet) / inlet
	if efficiency < equip.MinEfficiency {
		return r.OutletField, FieldResult{Warning: fmt.Sprintf(
			"destruction efficiency %.1f%% is below the required %.1f%%",
			efficiency*100, equip.MinEfficiency*100)}
	}
	return "", FieldResult{}
}

// evaluateToxicGas blocks above the hard H2S ceiling and warns above the
// effective advisory threshold (the stricter of the advisory value and the
// equipment's declared control requirement).
func (r CrossRule) evaluateToxicGas(values map[string]readings.FieldValue, equip equipment.Context) (string, FieldResult) {
	value, ok := numericValue(values[r.GasField])
	if !ok {
		return "", FieldResult{}
	}
	if value > equip.H2SCeilingPPM {
		return r.GasField, FieldResult{Error: fmt.Sprintf(
			"H2S %.1f ppm exceeds the safety limit of %.1f ppm", value, equip.H2SCeilingPPM)}
	}
	if warnAt := equip.H2SWarnPPM(); value > warnAt {
		return r.GasField, FieldResult{Warning: fmt.Sprintf(
			"H2S %.1f ppm is above the advisory threshold of %.1f ppm", value, warnAt)}
	}
	return "", FieldResult{}
}

// evaluateFlammability blocks above the %LEL safety ceiling and warns above
// the project target.
func (r CrossRule) evaluateFlammability(values map[string]readings.FieldValue, equip equipment.Context) (string, FieldResult) {
	value, ok := numericValue(values[r.GasField])
	if !ok {
		return "", FieldResult{}
	}
	if value > equip.LELCeilingPct {
		return r.GasField, FieldResult{Error: fmt.Sprintf(
			"%.1f%% LEL exceeds the safety ceiling of %.1f%% LEL", value, equip.LELCeilingPct)}
	}
	if value > equip.LELTargetPct {
		return r.GasField, FieldResult{Warning: fmt.Sprintf(
			"%.1f%% LEL is above the project target of %.1f%% LEL", value, equip.LELTargetPct)}
	}
	return "", FieldResult{}
}

// evaluateTemperatureBand warns when a temperature leaves the equipment's
// nominal operating band. Never blocking.
func (r CrossRule) evaluateTemperatureBand(values map[string]readings.FieldValue, equip equipment.Context) (string, FieldResult) {
	value, ok := numericValue(values[r.TempField])
	if !ok {
		return "", FieldResult{}
	}
	if value < equip.MinOperatingTempC || value > equip.MaxOperatingTempC {
		return r.TempField, FieldResult{Warning: fmt.Sprintf(
			"temperature %.1f C is outside the operating band %.1f-%.1f C",
			value, equip.MinOperatingTempC, equip.MaxOperatingTempC)}
	}
	return "", FieldResult{}
}

// evaluateOutletExceedsInlet warns when an outlet reading exceeds the inlet
// reading for the same measurement.
func (r CrossRule) evaluateOutletExceedsInlet(values map[string]readings.FieldValue) (string, FieldResult) {
	inlet, okIn := numericValue(values[r.InletField])
	outlet, okOut := numericValue(values[r.OutletField])
	if !okIn || !okOut {
		return "", FieldResult{}
	}
	if outlet > inlet {
		return r.OutletField, FieldResult{Warning: fmt.Sprintf(
			"outlet reading %.1f exceeds inlet reading %.1f", outlet, inlet)}
	}
	return "", FieldResult{}
}
