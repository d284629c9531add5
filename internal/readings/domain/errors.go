package readings

import "errors"

var (
	// ErrHourOutOfRange is returned when an hour is outside [0,23].
	ErrHourOutOfRange = errors.New("readings: hour out of range")
	// ErrMalformedHour is returned when an hour string is not a two-digit hour.
	ErrMalformedHour = errors.New("readings: malformed hour string")
	// ErrMalformedDateID is returned when a date id is not a valid YYYYMMDD date.
	ErrMalformedDateID = errors.New("readings: malformed date id")
	// ErrMalformedEntryKey is returned when an entry key cannot be parsed.
	ErrMalformedEntryKey = errors.New("readings: malformed entry key")
	// ErrEmptyProjectID is returned when a project id is missing.
	ErrEmptyProjectID = errors.New("readings: empty project id")
)
