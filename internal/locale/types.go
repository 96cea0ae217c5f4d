package locale

import (
	"strings"
	"time"
)

// Status is the on/off state of a locale.
type Status string

// Status values.
const (
	StatusOn  Status = "on"
	StatusOff Status = "off"

	// StatusUnknown is the sentinel stored when the controller reports a
	// status that is neither on nor off.
	StatusUnknown Status = "unknown"
)

// NormalizeStatus maps a raw status string to a Status.
//
// Any case variant of "on" or "off" maps to StatusOn or StatusOff. Anything
// else maps to StatusUnknown and ok is false.
func NormalizeStatus(raw string) (status Status, ok bool) {
	switch {
	case strings.EqualFold(raw, string(StatusOn)):
		return StatusOn, true
	case strings.EqualFold(raw, string(StatusOff)):
		return StatusOff, true
	default:
		return StatusUnknown, false
	}
}

// IsValid reports whether s is on or off.
func (s Status) IsValid() bool {
	return s == StatusOn || s == StatusOff
}

// Locale is a named controllable location.
//
// The JSON field names match both the controller wire format and the
// persisted cache document.
type Locale struct {
	Name   string `json:"locate"`
	Status Status `json:"status"`
}

// IsZero reports whether l is the zero Locale returned on a lookup miss.
func (l Locale) IsZero() bool {
	return l.Name == "" && l.Status == ""
}

// Table is an ordered collection of locales.
//
// Order is significant: observers address rows by position.
type Table []Locale

// Clone returns an independent copy of the table.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	cpy := make(Table, len(t))
	copy(cpy, t)
	return cpy
}

// Index returns the position of the first row named name, or -1.
func (t Table) Index(name string) int {
	for i := range t {
		if t[i].Name == name {
			return i
		}
	}
	return -1
}

// Names returns the locale names in table order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i := range t {
		names[i] = t[i].Name
	}
	return names
}

// Source identifies what caused a status change.
type Source string

// Source values.
const (
	SourceCommand Source = "command"
	SourcePoll    Source = "poll"
	SourceLoad    Source = "load"
)

// Outcome classifies the result of a merge.
type Outcome int

// Merge outcomes.
const (
	// OutcomeMiss means the name is not in the table. The table is untouched.
	OutcomeMiss Outcome = iota

	// OutcomeUpdated means the row's status changed.
	OutcomeUpdated

	// OutcomeUnchanged means the row already held the reported status.
	OutcomeUnchanged

	// OutcomeInvalidStatus means the reported status was not on/off and the
	// row now holds StatusUnknown.
	OutcomeInvalidStatus
)

// String returns the outcome name used in logs and API responses.
func (o Outcome) String() string {
	switch o {
	case OutcomeMiss:
		return "miss"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeInvalidStatus:
		return "invalid_status"
	default:
		return "unknown"
	}
}

// MarshalText lets Outcome render as its name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MergeResult describes what a single merge did.
type MergeResult struct {
	// Locale is the row after the merge, or the zero Locale on a miss.
	Locale Locale `json:"locale"`

	// Previous is the row's status before the merge.
	Previous Status `json:"previous,omitempty"`

	// RawStatus is the status exactly as the controller reported it.
	RawStatus string `json:"raw_status"`

	// Outcome classifies the merge.
	Outcome Outcome `json:"outcome"`
}

// Found reports whether the merge matched a row.
func (r MergeResult) Found() bool {
	return r.Outcome != OutcomeMiss
}

// Changed reports whether the merge altered the row's status.
func (r MergeResult) Changed() bool {
	return r.Found() && r.Previous != r.Locale.Status
}

// Change is emitted by the Store for every row whose status changed.
type Change struct {
	Name     string    `json:"locate"`
	Previous Status    `json:"previous"`
	Status   Status    `json:"status"`
	Source   Source    `json:"source"`
	At       time.Time `json:"timestamp"`
}
