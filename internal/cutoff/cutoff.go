// Package cutoff enforces how close to a service a pickup request may be
// created, edited or cancelled.
package cutoff

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/pickup"
)

const (
	// DefaultCreateBuffer is the minimum lead time for creating or editing a request.
	DefaultCreateBuffer = time.Hour
	// DefaultCancelBuffer is the minimum lead time for cancelling an accepted request.
	DefaultCancelBuffer = 2 * time.Hour
)

var (
	// ErrCutoffPassed indicates the action is too close to the service start.
	ErrCutoffPassed = errors.New("cutoff: request cutoff has passed")
	// ErrInvalidServiceTime indicates a service time that is not a valid HH:MM clock value.
	ErrInvalidServiceTime = errors.New("cutoff: service time must be HH:MM")
)

// Action identifies the request mutation being checked.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionEdit   Action = "EDIT"
	ActionCancel Action = "CANCEL"
)

// ServiceTime is the wall clock start of a service.
type ServiceTime struct {
	Hour   int
	Minute int
}

// ParseServiceTime parses an "HH:MM" value. Hours range 0-23 and minutes 0-59.
func ParseServiceTime(value string) (ServiceTime, error) {
	hourPart, minutePart, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok || len(hourPart) == 0 || len(hourPart) > 2 || len(minutePart) != 2 {
		return ServiceTime{}, fmt.Errorf("%w: %q", ErrInvalidServiceTime, value)
	}

	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return ServiceTime{}, fmt.Errorf("%w: %q", ErrInvalidServiceTime, value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return ServiceTime{}, fmt.Errorf("%w: %q", ErrInvalidServiceTime, value)
	}

	return ServiceTime{Hour: hour, Minute: minute}, nil
}

// String renders the time as zero padded HH:MM.
func (s ServiceTime) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// ServiceStart combines the calendar date of date with the service time in loc.
func ServiceStart(date time.Time, st ServiceTime, loc *time.Location) time.Time {
	if loc == nil {
		loc = date.Location()
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, st.Hour, st.Minute, 0, 0, loc)
}

// IsWithinRequestBuffer reports whether now has already entered the buffer
// window before the service on candidate's date.
func IsWithinRequestBuffer(candidate time.Time, serviceTime string, buffer time.Duration, now time.Time) (bool, error) {
	st, err := ParseServiceTime(serviceTime)
	if err != nil {
		return false, err
	}
	start := ServiceStart(candidate, st, candidate.Location())
	return now.After(start.Add(-buffer)), nil
}

// Policy holds the lead times enforced before a service starts.
type Policy struct {
	CreateBuffer time.Duration
	CancelBuffer time.Duration
}

// DefaultPolicy returns the standard one hour create and two hour cancel buffers.
func DefaultPolicy() Policy {
	return Policy{CreateBuffer: DefaultCreateBuffer, CancelBuffer: DefaultCancelBuffer}
}

// Check returns ErrCutoffPassed when action is no longer allowed at now.
// Pending requests may always be cancelled; accepted ones only until the cancel buffer.
func (p Policy) Check(action Action, status pickup.Status, serviceStart, now time.Time) error {
	var buffer time.Duration
	switch action {
	case ActionCreate, ActionEdit:
		buffer = p.CreateBuffer
	case ActionCancel:
		if status != pickup.StatusAccepted {
			return nil
		}
		buffer = p.CancelBuffer
	default:
		return fmt.Errorf("cutoff: unknown action %q", action)
	}

	deadline := serviceStart.Add(-buffer)
	if now.After(deadline) {
		return fmt.Errorf("%w: %s must happen before %s", ErrCutoffPassed, strings.ToLower(string(action)), deadline.Format(time.RFC3339))
	}
	return nil
}

// Allowed is the boolean form of Check.
func (p Policy) Allowed(action Action, status pickup.Status, serviceStart, now time.Time) bool {
	return p.Check(action, status, serviceStart, now) == nil
}
