package ledgersaga

import (
	"encoding/json"
	"fmt"
)

// Track identifies one of the three independent status tracks carried by a
// Record. The tracks advance monotonically and never interleave: progress
// freezes as soon as the cancel track is set, and the revert track only
// advances while a cancellation is underway.
type Track int

const (
	TrackProgress Track = iota
	TrackCancel
	TrackRevert
)

// String implements the fmt.Stringer interface for Track.
func (t Track) String() string {
	switch t {
	case TrackProgress:
		return "progress"
	case TrackCancel:
		return "cancel"
	case TrackRevert:
		return "revert"
	default:
		return fmt.Sprintf("Unknown Track: %d", t)
	}
}

// ProgressStatus is the forward phase of a saga record.
//
// Most domains walk INITIAL, PENDING, SETTLING, SETTLED. Quest execution
// records continue past settlement through STARTED, COMPLETE and CLAIMED.
// The numeric values are assigned in global ascending order so both tables
// are ascending subsequences, which lets stores guard transitions with a
// plain integer comparison.
type ProgressStatus int

const (
	StatusInitial ProgressStatus = iota
	StatusPending
	StatusSettling
	StatusSettled
	StatusStarted
	StatusComplete
	StatusClaimed
)

// CancelStatus is the cancellation track. The zero value means the record
// has never entered cancellation.
type CancelStatus int

const (
	CancelNone CancelStatus = iota
	CancelInitial
	CancelPending
	Canceled
)

// RevertStatus is the compensation track. The zero value means no inverse
// step has run.
type RevertStatus int

const (
	RevertNone RevertStatus = iota
	RevertInitial
	RevertSettling
	RevertPending
	Reverted
)

var (
	standardProgress = []ProgressStatus{StatusInitial, StatusPending, StatusSettling, StatusSettled}
	questProgress    = []ProgressStatus{StatusInitial, StatusPending, StatusSettling, StatusStarted, StatusComplete, StatusClaimed}
)

// progressTable returns the progress ordering for a domain.
func progressTable(d Domain) []ProgressStatus {
	if d == DomainQuest {
		return questProgress
	}
	return standardProgress
}

// notReached reports whether current sits strictly before target in the
// given ordering. The check walks the suffix of the table starting at
// target, so a record already at or past the target rejects the transition
// and every transition is idempotent under retry. An unknown target is
// never reached.
func notReached(table []ProgressStatus, current, target ProgressStatus) bool {
	start := -1
	for i, s := range table {
		if s == target {
			start = i
			break
		}
	}
	if start < 0 {
		return false
	}
	for _, s := range table[start:] {
		if s == current {
			return false
		}
	}
	return true
}

// ValidProgressTarget reports whether target belongs to the domain's
// progress ordering. Alternative store implementations use it to reject
// targets their integer guards cannot distinguish.
func ValidProgressTarget(d Domain, target ProgressStatus) bool {
	for _, s := range progressTable(d) {
		if s == target {
			return true
		}
	}
	return false
}

// TerminalProgress returns the last entry of the domain's progress
// ordering.
func TerminalProgress(d Domain) ProgressStatus {
	table := progressTable(d)
	return table[len(table)-1]
}

// SweepCeiling returns the progress state from which a record of the
// domain rests on its own schedule instead of being stuck. A quest
// execution rests at each milestone: once STARTED it waits, possibly for
// hours, until the next lifecycle call drives it onward. Every other
// domain rests only at its terminal state.
func SweepCeiling(d Domain) ProgressStatus {
	if d == DomainQuest {
		return StatusStarted
	}
	return TerminalProgress(d)
}

// progressResting reports whether the record sits at or past its domain's
// sweep ceiling. The constants ascend globally, so the check is an
// integer comparison.
func progressResting(rec *Record) bool {
	return rec.Progress >= SweepCeiling(rec.Domain)
}

// MaxRevertFor returns the furthest revert state that may already be
// recorded when the given cancel state is set.
func MaxRevertFor(c CancelStatus) RevertStatus {
	return matchingRevert(c)
}

// progressTerminal reports whether the record has reached the last entry of
// its domain's progress ordering.
func progressTerminal(rec *Record) bool {
	table := progressTable(rec.Domain)
	return rec.Progress == table[len(table)-1]
}

// canAdvanceProgress reports whether the progress track may move to target.
// A set cancel or revert track freezes progress permanently.
func canAdvanceProgress(rec *Record, target ProgressStatus) bool {
	if rec.Cancel != CancelNone || rec.Revert != RevertNone {
		return false
	}
	return notReached(progressTable(rec.Domain), rec.Progress, target)
}

// matchingRevert maps a cancel state to the furthest revert state that may
// already be recorded when the cancel state is set.
func matchingRevert(c CancelStatus) RevertStatus {
	switch c {
	case CancelInitial:
		return RevertInitial
	case CancelPending:
		return RevertPending
	case Canceled:
		return Reverted
	default:
		return RevertNone
	}
}

// canAdvanceCancel reports whether the cancel track may move to target. The
// revert track must not have advanced past the point matching the target.
func canAdvanceCancel(rec *Record, target CancelStatus) bool {
	if target == CancelNone || rec.Cancel >= target {
		return false
	}
	return rec.Revert <= matchingRevert(target)
}

// canAdvanceRevert reports whether the revert track may move to target.
// Inverse steps only run under an open cancellation.
func canAdvanceRevert(rec *Record, target RevertStatus) bool {
	if target == RevertNone || rec.Cancel == CancelNone {
		return false
	}
	return rec.Revert < target
}

// String returns the string representation of the ProgressStatus.
func (s ProgressStatus) String() string {
	switch s {
	case StatusInitial:
		return "INITIAL"
	case StatusPending:
		return "PENDING"
	case StatusSettling:
		return "SETTLING"
	case StatusSettled:
		return "SETTLED"
	case StatusStarted:
		return "STARTED"
	case StatusComplete:
		return "COMPLETE"
	case StatusClaimed:
		return "CLAIMED"
	default:
		return fmt.Sprintf("Unknown ProgressStatus: %d", s)
	}
}

// MarshalJSON implements the json.Marshaler interface for ProgressStatus.
func (s ProgressStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for ProgressStatus.
func (s *ProgressStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "INITIAL":
		*s = StatusInitial
	case "PENDING":
		*s = StatusPending
	case "SETTLING":
		*s = StatusSettling
	case "SETTLED":
		*s = StatusSettled
	case "STARTED":
		*s = StatusStarted
	case "COMPLETE":
		*s = StatusComplete
	case "CLAIMED":
		*s = StatusClaimed
	default:
		return fmt.Errorf("invalid ProgressStatus: %s", str)
	}

	return nil
}

// String returns the string representation of the CancelStatus.
func (s CancelStatus) String() string {
	switch s {
	case CancelNone:
		return ""
	case CancelInitial:
		return "CANCEL_INITIAL"
	case CancelPending:
		return "CANCEL_PENDING"
	case Canceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("Unknown CancelStatus: %d", s)
	}
}

// MarshalJSON implements the json.Marshaler interface for CancelStatus.
func (s CancelStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for CancelStatus.
func (s *CancelStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "":
		*s = CancelNone
	case "CANCEL_INITIAL":
		*s = CancelInitial
	case "CANCEL_PENDING":
		*s = CancelPending
	case "CANCELED":
		*s = Canceled
	default:
		return fmt.Errorf("invalid CancelStatus: %s", str)
	}

	return nil
}

// String returns the string representation of the RevertStatus.
func (s RevertStatus) String() string {
	switch s {
	case RevertNone:
		return ""
	case RevertInitial:
		return "REVERT_INITIAL"
	case RevertSettling:
		return "REVERT_SETTLING"
	case RevertPending:
		return "REVERT_PENDING"
	case Reverted:
		return "REVERTED"
	default:
		return fmt.Sprintf("Unknown RevertStatus: %d", s)
	}
}

// MarshalJSON implements the json.Marshaler interface for RevertStatus.
func (s RevertStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for RevertStatus.
func (s *RevertStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "":
		*s = RevertNone
	case "REVERT_INITIAL":
		*s = RevertInitial
	case "REVERT_SETTLING":
		*s = RevertSettling
	case "REVERT_PENDING":
		*s = RevertPending
	case "REVERTED":
		*s = Reverted
	default:
		return fmt.Errorf("invalid RevertStatus: %s", str)
	}

	return nil
}
