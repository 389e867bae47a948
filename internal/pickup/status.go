// Package pickup defines the lifecycle of a pickup request.
package pickup

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a pickup request.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAccepted  Status = "ACCEPTED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Event drives a status transition.
type Event string

const (
	// EventAccept assigns a driver to a pending request.
	EventAccept Event = "ACCEPT"
	// EventRelease returns an accepted request to the pool when the driver backs out.
	EventRelease Event = "RELEASE"
	// EventCancel withdraws the request.
	EventCancel Event = "CANCEL"
	// EventComplete marks the ride as done.
	EventComplete Event = "COMPLETE"
)

var (
	// ErrTerminalState is returned for any event applied to a completed or cancelled request.
	ErrTerminalState = errors.New("pickup: request is in a terminal state")
	// ErrInvalidTransition is returned when the event is not legal from the current status.
	ErrInvalidTransition = errors.New("pickup: invalid status transition")
	// ErrUnknownStatus is returned when parsing an unrecognised status label.
	ErrUnknownStatus = errors.New("pickup: unknown status")
)

// ParseStatus converts a label into a Status.
func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, value)
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether the request still occupies its (user, service day, date) slot.
func (s Status) Active() bool {
	return s != StatusCancelled
}

// Transition applies ev to from and returns the resulting status.
func Transition(from Status, ev Event) (Status, error) {
	switch from {
	case StatusCompleted, StatusCancelled:
		return from, fmt.Errorf("%w: %s", ErrTerminalState, from)
	case StatusPending:
		switch ev {
		case EventAccept:
			return StatusAccepted, nil
		case EventCancel:
			return StatusCancelled, nil
		case EventRelease, EventComplete:
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
		}
	case StatusAccepted:
		switch ev {
		case EventRelease:
			return StatusPending, nil
		case EventCancel:
			return StatusCancelled, nil
		case EventComplete:
			return StatusCompleted, nil
		case EventAccept:
			return from, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, ev, from)
		}
	}
	return from, fmt.Errorf("%w: %s from %q", ErrInvalidTransition, ev, from)
}
