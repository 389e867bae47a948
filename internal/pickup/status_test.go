package pickup

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		from    Status
		event   Event
		want    Status
		wantErr error
	}{
		{name: "accept pending", from: StatusPending, event: EventAccept, want: StatusAccepted},
		{name: "cancel pending", from: StatusPending, event: EventCancel, want: StatusCancelled},
		{name: "release accepted", from: StatusAccepted, event: EventRelease, want: StatusPending},
		{name: "cancel accepted", from: StatusAccepted, event: EventCancel, want: StatusCancelled},
		{name: "complete accepted", from: StatusAccepted, event: EventComplete, want: StatusCompleted},
		{name: "complete pending", from: StatusPending, event: EventComplete, wantErr: ErrInvalidTransition},
		{name: "release pending", from: StatusPending, event: EventRelease, wantErr: ErrInvalidTransition},
		{name: "accept accepted", from: StatusAccepted, event: EventAccept, wantErr: ErrInvalidTransition},
		{name: "unknown event", from: StatusPending, event: Event("REOPEN"), wantErr: ErrInvalidTransition},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Transition(tc.from, tc.event)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if got != tc.from {
					t.Fatalf("expected status to remain %s, got %s", tc.from, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestTransition_TerminalStatesRejectEverything(t *testing.T) {
	t.Parallel()

	events := []Event{EventAccept, EventRelease, EventCancel, EventComplete}
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		if !status.Terminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
		for _, ev := range events {
			if _, err := Transition(status, ev); !errors.Is(err, ErrTerminalState) {
				t.Fatalf("%s on %s: expected ErrTerminalState, got %v", ev, status, err)
			}
		}
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	got, err := ParseStatus(" accepted ")
	if err != nil || got != StatusAccepted {
		t.Fatalf("expected ACCEPTED, got %q (%v)", got, err)
	}
	if _, err := ParseStatus("lost"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
	if StatusCancelled.Active() || !StatusPending.Active() {
		t.Fatal("only cancelled requests should release their slot")
	}
}
