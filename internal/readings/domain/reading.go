package readings

import "time"

// FieldValue is one named measurement value inside a reading. Numeric and
// text values are kept in separate typed slots; per-field modification
// metadata drives field-level conflict resolution.
type FieldValue struct {
	Number     *float64  `json:"number,omitempty" msgpack:"number,omitempty"`
	Text       *string   `json:"text,omitempty" msgpack:"text,omitempty"`
	ModifiedBy string    `json:"modified_by,omitempty" msgpack:"modified_by,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty" msgpack:"modified_at,omitempty"`
}

// NumberValue builds a numeric field value.
func NumberValue(v float64) FieldValue {
	return FieldValue{Number: &v}
}

// TextValue builds a text field value.
func TextValue(v string) FieldValue {
	return FieldValue{Text: &v}
}

// IsEmpty reports whether the field carries no value at all.
func (v FieldValue) IsEmpty() bool {
	return v.Number == nil && (v.Text == nil || *v.Text == "")
}

// SameValue reports whether two field values carry the same measurement,
// ignoring modification metadata.
func (v FieldValue) SameValue(other FieldValue) bool {
	switch {
	case v.Number != nil && other.Number != nil:
		return *v.Number == *other.Number
	case v.Text != nil && other.Text != nil:
		return *v.Text == *other.Text
	default:
		return v.IsEmpty() && other.IsEmpty()
	}
}

// Reading is one hourly measurement set for one piece of equipment.
type Reading struct {
	ProjectID      string                `json:"project_id" msgpack:"project_id"`
	DateID         string                `json:"date_id" msgpack:"date_id"`
	Hour           int                   `json:"hour" msgpack:"hour"`
	Fields         map[string]FieldValue `json:"fields" msgpack:"fields"`
	Version        int64                 `json:"version" msgpack:"version"`
	LastModifiedBy string                `json:"last_modified_by" msgpack:"last_modified_by"`
	LastModifiedAt time.Time             `json:"last_modified_at" msgpack:"last_modified_at"`
}

// Identity returns the (project, date, hour) triple of the reading.
func (r Reading) Identity() Identity {
	return Identity{ProjectID: r.ProjectID, DateID: r.DateID, Hour: r.Hour}
}

// Key returns the canonical entry key of the reading.
func (r Reading) Key() EntryKey {
	return r.Identity().Key()
}

// Validate checks the identity invariants of the reading.
func (r Reading) Validate() error {
	_, err := NewIdentity(r.ProjectID, r.DateID, r.Hour)
	return err
}

// CloneFields returns a deep copy of the reading's field map. Map values are
// plain structs with pointer slots, so pointees are copied too.
func (r Reading) CloneFields() map[string]FieldValue {
	out := make(map[string]FieldValue, len(r.Fields))
	for key, value := range r.Fields {
		if value.Number != nil {
			n := *value.Number
			value.Number = &n
		}
		if value.Text != nil {
			t := *value.Text
			value.Text = &t
		}
		out[key] = value
	}
	return out
}
