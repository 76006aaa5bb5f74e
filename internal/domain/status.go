package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of an inference job. Values are stored
// verbatim in the job_status column.
type Status string

const (
	// StatusBot means the job is waiting for (or undergoing) inference.
	StatusBot Status = "bot"
	// StatusHuman means inference finished and the job awaits review.
	StatusHuman Status = "human"
	// StatusSuccess is terminal: a reviewer approved the result.
	StatusSuccess Status = "success"
	// StatusFail is terminal: the job was rejected or inference failed.
	StatusFail Status = "fail"
)

// transitions is the complete table of legal status changes.
var transitions = map[Status][]Status{
	StatusBot:   {StatusHuman, StatusFail},
	StatusHuman: {StatusBot, StatusSuccess, StatusFail},
}

// ParseStatus converts user input into a Status. Matching is case-insensitive.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

func (s Status) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusBot, StatusHuman, StatusSuccess, StatusFail:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, target := range transitions[from] {
		if target == to {
			return true
		}
	}
	return false
}
