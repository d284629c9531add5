package validation

import (
	"strings"
	"testing"

	equipment "fieldlog/internal/equipment/domain"
	readings "fieldlog/internal/readings/domain"
)

func testEquipment() equipment.Context {
	return equipment.Context{
		ProjectID:         "plant-a",
		ProcessType:       equipment.ProcessThermalOxidizer,
		MinOperatingTempC: 760,
		MaxOperatingTempC: 980,
		H2SCeilingPPM:     100,
		H2SAdvisoryPPM:    50,
		LELCeilingPct:     25,
		LELTargetPct:      10,
		MinEfficiency:     0.98,
	}
}

func floatPtr(v float64) *float64 { return &v }

func testSpecs() []FieldSpec {
	return []FieldSpec{
		{Key: "combustion_temp_c", Type: FieldTypeNumber, Required: true, Min: floatPtr(0), Max: floatPtr(2000)},
		{Key: "h2s_inlet_ppm", Type: FieldTypeNumber, Min: floatPtr(0)},
		{Key: "h2s_outlet_ppm", Type: FieldTypeNumber, Min: floatPtr(0)},
		{Key: "lel_pct", Type: FieldTypeNumber, Min: floatPtr(0), Max: floatPtr(100)},
		{Key: "operator_notes", Type: FieldTypeText, MaxLength: 10},
		{Key: "process_mode", Type: FieldTypeSelect, Options: []string{"auto", "manual"}},
		{Key: "sample_time", Type: FieldTypeDateTime},
		{
			Key: "bypass_reason", Type: FieldTypeText, Required: true,
			DisplayWhen: &Condition{Field: "process_mode", Operator: CondEquals, Value: "manual"},
		},
	}
}

func testRules() []CrossRule {
	return []CrossRule{
		{ID: RuleIDDestructionEfficiency, Kind: RuleKindEfficiency, InletField: "h2s_inlet_ppm", OutletField: "h2s_outlet_ppm"},
		{ID: RuleIDToxicGasSafety, Kind: RuleKindToxicGas, GasField: "h2s_outlet_ppm"},
		{ID: RuleIDFlammability, Kind: RuleKindFlammability, GasField: "lel_pct"},
		{ID: RuleIDTemperatureBand, Kind: RuleKindTemperatureBand, TempField: "combustion_temp_c"},
		{ID: RuleIDSystemEfficiency, Kind: RuleKindOutletExceedsInlet, InletField: "h2s_inlet_ppm", OutletField: "h2s_outlet_ppm"},
	}
}

func baseValues() map[string]readings.FieldValue {
	return map[string]readings.FieldValue{
		"combustion_temp_c": readings.NumberValue(870),
		"h2s_inlet_ppm":     readings.NumberValue(200),
		"h2s_outlet_ppm":    readings.NumberValue(2),
		"lel_pct":           readings.NumberValue(4),
		"process_mode":      readings.TextValue("auto"),
	}
}

func TestValidateFormCleanReading(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	result := engine.ValidateForm(testSpecs(), baseValues(), testEquipment())
	if !result.Valid() {
		t.Fatalf("expected valid reading, got errors %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", result.Warnings)
	}
}

func TestRequiredFieldMissing(t *testing.T) {
	engine := NewEngine(nil, nil)
	values := baseValues()
	delete(values, "combustion_temp_c")

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if result.Valid() {
		t.Fatal("expected blocking error for missing required field")
	}
	if _, ok := result.Errors["combustion_temp_c"]; !ok {
		t.Fatalf("expected error on combustion_temp_c, got %v", result.Errors)
	}
}

func TestNumericRange(t *testing.T) {
	engine := NewEngine(nil, nil)
	values := baseValues()
	values["combustion_temp_c"] = readings.NumberValue(2500)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if result.Valid() {
		t.Fatal("expected range error")
	}

	values["combustion_temp_c"] = readings.TextValue("not a number")
	result = engine.ValidateForm(testSpecs(), values, testEquipment())
	if _, ok := result.Errors["combustion_temp_c"]; !ok {
		t.Fatalf("expected numeric error, got %v", result.Errors)
	}
}

func TestTextAndSelectAndDateTimeChecks(t *testing.T) {
	engine := NewEngine(nil, nil)
	values := baseValues()
	values["operator_notes"] = readings.TextValue("this note is far too long")
	values["process_mode"] = readings.TextValue("standby")
	values["sample_time"] = readings.TextValue("not a time")

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	for _, field := range []string{"operator_notes", "process_mode", "sample_time"} {
		if _, ok := result.Errors[field]; !ok {
			t.Errorf("expected error on %s, got %v", field, result.Errors)
		}
	}

	values["sample_time"] = readings.TextValue("2026-08-15 07:00")
	values["process_mode"] = readings.TextValue("manual")
	values["operator_notes"] = readings.TextValue("short")
	values["bypass_reason"] = readings.TextValue("maintenance")
	result = engine.ValidateForm(testSpecs(), values, testEquipment())
	if !result.Valid() {
		t.Fatalf("expected valid, got %v", result.Errors)
	}
}

// A toxic-gas value above the hard ceiling is a blocking error.
func TestToxicGasAboveCeilingBlocks(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["h2s_outlet_ppm"] = readings.NumberValue(120)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if result.Valid() {
		t.Fatal("expected blocking error for H2S above limit")
	}
	msg, ok := result.Errors["h2s_outlet_ppm"]
	if !ok || !strings.Contains(msg, "120.0") {
		t.Fatalf("expected H2S error mentioning the value, got %v", result.Errors)
	}
}

// A stricter per-equipment control requirement lowers the warning threshold
// without making the reading blocking.
func TestToxicGasStricterRequirementWarnsOnly(t *testing.T) {
	equip := testEquipment()
	equip.ControlAbovePPM = floatPtr(10)

	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["h2s_outlet_ppm"] = readings.NumberValue(60)
	values["h2s_inlet_ppm"] = readings.NumberValue(6000)

	result := engine.ValidateForm(testSpecs(), values, equip)
	if !result.Valid() {
		t.Fatalf("expected no blocking errors, got %v", result.Errors)
	}
	if _, ok := result.Warnings["h2s_outlet_ppm"]; !ok {
		t.Fatalf("expected advisory warning, got %v", result.Warnings)
	}
}

func TestFlammabilityThresholds(t *testing.T) {
	engine := NewEngine(testRules(), nil)

	values := baseValues()
	values["lel_pct"] = readings.NumberValue(30)
	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if _, ok := result.Errors["lel_pct"]; !ok {
		t.Fatalf("expected blocking error above ceiling, got %v", result.Errors)
	}

	values["lel_pct"] = readings.NumberValue(15)
	result = engine.ValidateForm(testSpecs(), values, testEquipment())
	if !result.Valid() {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	if _, ok := result.Warnings["lel_pct"]; !ok {
		t.Fatalf("expected warning above target, got %v", result.Warnings)
	}
}

func TestTemperatureBandWarnsOnly(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["combustion_temp_c"] = readings.NumberValue(500)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if !result.Valid() {
		t.Fatalf("temperature outside band must not block, got %v", result.Errors)
	}
	if _, ok := result.Warnings["combustion_temp_c"]; !ok {
		t.Fatalf("expected temperature warning, got %v", result.Warnings)
	}
}

func TestEfficiencyWarning(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["h2s_inlet_ppm"] = readings.NumberValue(100)
	values["h2s_outlet_ppm"] = readings.NumberValue(20) // 80% efficiency, below 98%

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if !result.Valid() {
		t.Fatalf("efficiency shortfall must not block, got %v", result.Errors)
	}
	msg, ok := result.Warnings["h2s_outlet_ppm"]
	if !ok || !strings.Contains(msg, "efficiency") {
		t.Fatalf("expected efficiency warning, got %v", result.Warnings)
	}
}

func TestEfficiencySkippedWhenInletNotPositive(t *testing.T) {
	engine := NewEngine(testRules()[:1], nil)
	values := baseValues()
	values["h2s_inlet_ppm"] = readings.NumberValue(0)
	values["h2s_outlet_ppm"] = readings.NumberValue(0)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings with zero inlet, got %v", result.Warnings)
	}
}

func TestOutletExceedsInletWarns(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["h2s_inlet_ppm"] = readings.NumberValue(5)
	values["h2s_outlet_ppm"] = readings.NumberValue(9)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if !result.Valid() {
		t.Fatalf("expected no blocking errors, got %v", result.Errors)
	}
	if _, ok := result.Warnings["h2s_outlet_ppm"]; !ok {
		t.Fatalf("expected system efficiency warning, got %v", result.Warnings)
	}
}

func TestCrossRuleSkippedWhenPhaseOneFailed(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	values["h2s_outlet_ppm"] = readings.TextValue("bogus")

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if _, ok := result.Errors["h2s_outlet_ppm"]; !ok {
		t.Fatalf("expected phase 1 error, got %v", result.Errors)
	}
	// Phase 2 must not add a second verdict for the failed field.
	if _, ok := result.Warnings["h2s_outlet_ppm"]; ok {
		t.Fatalf("cross rules should be skipped for failed fields, got %v", result.Warnings)
	}
}

func TestCrossRuleSkippedByDisplayCondition(t *testing.T) {
	rules := testRules()
	rules[1].DisplayWhen = &Condition{Field: "process_mode", Operator: CondEquals, Value: "manual"}

	engine := NewEngine(rules, nil)
	values := baseValues()
	values["h2s_outlet_ppm"] = readings.NumberValue(120)

	result := engine.ValidateForm(testSpecs(), values, testEquipment())
	if _, ok := result.Errors["h2s_outlet_ppm"]; ok {
		t.Fatalf("gated rule should be skipped in auto mode, got %v", result.Errors)
	}
}

func TestUnknownRuleIDFailsSoft(t *testing.T) {
	rules := append(testRules(), CrossRule{ID: "future_rule", Kind: RuleKindUnknown})
	engine := NewEngine(rules, nil)

	result := engine.ValidateForm(testSpecs(), baseValues(), testEquipment())
	if !result.Valid() {
		t.Fatalf("unknown rule must be skipped, got %v", result.Errors)
	}
}

func TestValidateFormDoesNotMutateInput(t *testing.T) {
	engine := NewEngine(testRules(), nil)
	values := baseValues()
	before := len(values)

	_ = engine.ValidateForm(testSpecs(), values, testEquipment())
	if len(values) != before {
		t.Fatal("validation must not mutate input values")
	}
}
