package readings

import (
	"fmt"
	"strings"
	"time"
)

// dateIDLayout is the persisted representation of a log day.
const dateIDLayout = "20060102"

// HourToTwoDigit formats an hour of day as the zero-padded two-digit string
// used in entry keys and remote paths.
func HourToTwoDigit(hour int) (string, error) {
	if hour < 0 || hour > 23 {
		return "", fmt.Errorf("%w: %d", ErrHourOutOfRange, hour)
	}
	return fmt.Sprintf("%02d", hour), nil
}

// TwoDigitToHour parses a zero-padded two-digit hour string.
func TwoDigitToHour(s string) (int, error) {
	if len(s) != 2 || !allDigits(s) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHour, s)
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	if hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedHour, s)
	}
	return hour, nil
}

// DateToID formats a calendar date as an 8-digit YYYYMMDD date id.
func DateToID(date time.Time) string {
	return date.UTC().Format(dateIDLayout)
}

// IDToDate parses an 8-digit date id into the UTC midnight of that day.
func IDToDate(id string) (time.Time, error) {
	if len(id) != 8 || !allDigits(id) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDateID, id)
	}
	date, err := time.ParseInLocation(dateIDLayout, id, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDateID, id)
	}
	return date, nil
}

// IsValidHour reports whether s is a valid two-digit hour string.
func IsValidHour(s string) bool {
	_, err := TwoDigitToHour(s)
	return err == nil
}

// IsValidDateID reports whether s is a valid 8-digit date id.
func IsValidDateID(s string) bool {
	_, err := IDToDate(s)
	return err == nil
}

// EntryKey is the canonical string identity of one hourly reading,
// formatted as projectId_dateId_hour2.
type EntryKey string

// String returns the raw key for storage.
func (k EntryKey) String() string { return string(k) }

// Identity is the (project, date, hour) triple addressing one reading.
type Identity struct {
	ProjectID string
	DateID    string
	Hour      int
}

// NewIdentity validates and builds a reading identity.
func NewIdentity(projectID, dateID string, hour int) (Identity, error) {
	if projectID == "" {
		return Identity{}, ErrEmptyProjectID
	}
	if !IsValidDateID(dateID) {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformedDateID, dateID)
	}
	if hour < 0 || hour > 23 {
		return Identity{}, fmt.Errorf("%w: %d", ErrHourOutOfRange, hour)
	}
	return Identity{ProjectID: projectID, DateID: dateID, Hour: hour}, nil
}

// Key returns the canonical entry key for this identity.
func (id Identity) Key() EntryKey {
	hour2, _ := HourToTwoDigit(id.Hour)
	return EntryKey(id.ProjectID + "_" + id.DateID + "_" + hour2)
}

// RemotePath returns the remote store document path for this identity.
// The layout projects/{projectId}/logs/{dateId}/entries/{hour2} is the wire
// contract with the shared store and must not change.
func (id Identity) RemotePath() string {
	hour2, _ := HourToTwoDigit(id.Hour)
	return "projects/" + id.ProjectID + "/logs/" + id.DateID + "/entries/" + hour2
}

// ParseEntryKey splits a canonical entry key back into an identity.
// Project ids may contain underscores, so the key is split from the right.
func ParseEntryKey(key EntryKey) (Identity, error) {
	raw := string(key)
	lastSep := strings.LastIndexByte(raw, '_')
	if lastSep <= 0 {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformedEntryKey, raw)
	}
	prevSep := strings.LastIndexByte(raw[:lastSep], '_')
	if prevSep <= 0 {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformedEntryKey, raw)
	}
	hour, err := TwoDigitToHour(raw[lastSep+1:])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformedEntryKey, raw)
	}
	return NewIdentity(raw[:prevSep], raw[prevSep+1:lastSep], hour)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
