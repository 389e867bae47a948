package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/example/church-pickups/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "unauthorized", err: ErrUnauthorized, want: "unauthorized"},
		{name: "wrapped not found", err: fmt.Errorf("load: %w", ErrNotFound), want: "not_found"},
		{name: "already exists", err: ErrAlreadyExists, want: "already_exists"},
		{name: "duplicate", err: ErrDuplicateRequest, want: "duplicate_request"},
		{name: "cutoff", err: fmt.Errorf("%w: deadline", ErrCutoffPassed), want: "cutoff_passed"},
		{name: "invalid state", err: ErrInvalidState, want: "invalid_state"},
		{name: "validation", err: newValidationError("time", "bad"), want: "validation"},
		{name: "other", err: errors.New("boom"), want: "unexpected"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ErrorKind(tt.err); got != tt.want {
				t.Fatalf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceLogger_PrefersContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctxLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)

	serviceLogger(ctx, slog.New(slog.NewJSONHandler(io.Discard, nil)), "PickupService", "CreateRequest", "request_id", "req-1").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	if entry["service"] != "PickupService" || entry["operation"] != "CreateRequest" || entry["request_id"] != "req-1" {
		t.Fatalf("unexpected log attributes: %v", entry)
	}
}
