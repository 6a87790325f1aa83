package models

import "fmt"

// Status is the state of one processing track (analysis or IaC generation).
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether a track may move from s to next. Returning
// to NOT_STARTED is only possible through an explicit reset.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	switch s {
	case StatusNotStarted:
		return next == StatusNotStarted || next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusInProgress || next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusCompleted || next == StatusInProgress
	case StatusFailed:
		return next == StatusFailed || next == StatusInProgress
	case "":
		// Records written before the track existed.
		return next != StatusCompleted
	}
	return false
}
