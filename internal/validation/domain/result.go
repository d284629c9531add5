package validation

// FieldResult is the per-field verdict of a single check: at most one
// blocking error and one advisory warning.
type FieldResult struct {
	Error   string
	Warning string
}

// Blocking reports whether the result prevents queueing.
func (r FieldResult) Blocking() bool { return r.Error != "" }

// Result is the per-reading verdict. Created fresh on every validation call
// and never persisted.
type Result struct {
	Errors   map[string]string
	Warnings map[string]string
}

// NewResult returns an empty result.
func NewResult() Result {
	return Result{
		Errors:   make(map[string]string),
		Warnings: make(map[string]string),
	}
}

// Valid reports whether no blocking error was recorded.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// AddError records a blocking error for a field. The first error per field
// wins so outcomes stay deterministic under fixed evaluation order.
func (r Result) AddError(field, message string) {
	if message == "" {
		return
	}
	if _, exists := r.Errors[field]; !exists {
		r.Errors[field] = message
	}
}

// AddWarning records an advisory warning for a field.
func (r Result) AddWarning(field, message string) {
	if message == "" {
		return
	}
	if _, exists := r.Warnings[field]; !exists {
		r.Warnings[field] = message
	}
}
