package cutoff

import (
	"errors"
	"testing"
	"time"

	"github.com/example/church-pickups/internal/pickup"
)

func TestParseServiceTime(t *testing.T) {
	t.Parallel()

	valid := map[string]ServiceTime{
		"11:00": {Hour: 11},
		"9:30":  {Hour: 9, Minute: 30},
		"00:00": {},
		"23:59": {Hour: 23, Minute: 59},
	}
	for input, want := range valid {
		got, err := ParseServiceTime(input)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", input, err)
		}
		if got != want {
			t.Fatalf("%q: expected %+v, got %+v", input, want, got)
		}
	}

	for _, input := range []string{"", "11", "24:00", "12:60", "ab:cd", "7:5", "-1:30", "123:00"} {
		if _, err := ParseServiceTime(input); !errors.Is(err, ErrInvalidServiceTime) {
			t.Fatalf("%q: expected ErrInvalidServiceTime, got %v", input, err)
		}
	}

	if got := (ServiceTime{Hour: 7, Minute: 5}).String(); got != "07:05" {
		t.Fatalf("expected 07:05, got %s", got)
	}
}

func TestPolicy_Check(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	date := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	start := ServiceStart(date, ServiceTime{Hour: 11}, time.UTC)
	at := func(hour, minute int) time.Time {
		return time.Date(2024, time.March, 10, hour, minute, 0, 0, time.UTC)
	}

	cases := []struct {
		name    string
		action  Action
		status  pickup.Status
		now     time.Time
		wantErr bool
	}{
		{name: "create inside the buffer", action: ActionCreate, status: pickup.StatusPending, now: at(10, 1), wantErr: true},
		{name: "create before the buffer", action: ActionCreate, status: pickup.StatusPending, now: at(9, 59)},
		{name: "create exactly at the deadline", action: ActionCreate, status: pickup.StatusPending, now: at(10, 0)},
		{name: "edit after start", action: ActionEdit, status: pickup.StatusPending, now: at(11, 30), wantErr: true},
		{name: "cancel accepted one hour out", action: ActionCancel, status: pickup.StatusAccepted, now: at(10, 0), wantErr: true},
		{name: "cancel accepted three hours out", action: ActionCancel, status: pickup.StatusAccepted, now: at(8, 0)},
		{name: "cancel pending after start", action: ActionCancel, status: pickup.StatusPending, now: at(11, 30)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := policy.Check(tc.action, tc.status, start, tc.now)
			if tc.wantErr {
				if !errors.Is(err, ErrCutoffPassed) {
					t.Fatalf("expected ErrCutoffPassed, got %v", err)
				}
				if policy.Allowed(tc.action, tc.status, start, tc.now) {
					t.Fatal("expected Allowed to report false")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	if err := policy.Check(Action("ARCHIVE"), pickup.StatusPending, start, at(6, 0)); err == nil {
		t.Fatal("expected unknown action to be rejected")
	}
}

func TestIsWithinRequestBuffer(t *testing.T) {
	t.Parallel()

	candidate := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	within, err := IsWithinRequestBuffer(candidate, "11:00", time.Hour, time.Date(2024, time.March, 10, 10, 1, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !within {
		t.Fatal("expected 10:01 to be within the buffer of an 11:00 service")
	}

	within, err = IsWithinRequestBuffer(candidate, "11:00", time.Hour, time.Date(2024, time.March, 10, 9, 59, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if within {
		t.Fatal("expected 09:59 to be outside the buffer of an 11:00 service")
	}

	if _, err := IsWithinRequestBuffer(candidate, "eleven", time.Hour, candidate); !errors.Is(err, ErrInvalidServiceTime) {
		t.Fatalf("expected ErrInvalidServiceTime, got %v", err)
	}
}
