package equipment

import "errors"

// Process types for monitored equipment.
const (
	ProcessThermalOxidizer = "thermal_oxidizer"
	ProcessCarbonAdsorber  = "carbon_adsorber"
	ProcessVaporCombustor  = "vapor_combustor"
)

// ErrUnknownProject is returned when no equipment context exists for a project.
var ErrUnknownProject = errors.New("equipment: unknown project")

// Context is read-only reference data about the monitored equipment and its
// regulatory targets. It is supplied by an external collaborator and consumed
// by the validation engine; the core never mutates it.
type Context struct {
	ProjectID   string `yaml:"project_id" json:"project_id"`
	ProcessType string `yaml:"process_type" json:"process_type"`

	// Nominal operating temperature band. Readings outside the band are a
	// warning, not an error.
	MinOperatingTempC float64 `yaml:"min_operating_temp_c" json:"min_operating_temp_c"`
	MaxOperatingTempC float64 `yaml:"max_operating_temp_c" json:"max_operating_temp_c"`

	// H2S worker-safety thresholds in PPM. Above the ceiling is blocking;
	// above the advisory threshold is a warning. ControlAbovePPM, when set,
	// is a stricter per-equipment requirement that lowers the warning bar.
	H2SCeilingPPM   float64  `yaml:"h2s_ceiling_ppm" json:"h2s_ceiling_ppm"`
	H2SAdvisoryPPM  float64  `yaml:"h2s_advisory_ppm" json:"h2s_advisory_ppm"`
	ControlAbovePPM *float64 `yaml:"control_above_ppm,omitempty" json:"control_above_ppm,omitempty"`

	// Flammability thresholds as %LEL. Above the ceiling is blocking; above
	// the project target is a warning.
	LELCeilingPct float64 `yaml:"lel_ceiling_pct" json:"lel_ceiling_pct"`
	LELTargetPct  float64 `yaml:"lel_target_pct" json:"lel_target_pct"`

	// MinEfficiency is the minimum acceptable destruction/removal efficiency
	// as a fraction in [0,1]. Below it is a warning.
	MinEfficiency float64 `yaml:"min_efficiency" json:"min_efficiency"`
}

// H2SWarnPPM returns the effective H2S warning threshold: the advisory
// threshold, or the equipment's stricter control requirement when declared.
func (c Context) H2SWarnPPM() float64 {
	if c.ControlAbovePPM != nil && *c.ControlAbovePPM < c.H2SAdvisoryPPM {
		return *c.ControlAbovePPM
	}
	return c.H2SAdvisoryPPM
}

// Provider resolves the equipment context for a project. Implemented by the
// collaborator that owns equipment master data.
type Provider interface {
	EquipmentContext(projectID string) (Context, error)
}

// StaticProvider serves contexts from an in-memory map, for embedding and tests.
type StaticProvider map[string]Context

// EquipmentContext returns the context registered for the project.
func (p StaticProvider) EquipmentContext(projectID string) (Context, error) {
	ctx, ok := p[projectID]
	if !ok {
		return Context{}, ErrUnknownProject
	}
	return ctx, nil
}
