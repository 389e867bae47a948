package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/church-pickups/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrCutoffPassed):
		return "cutoff_passed"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}

// logOutcome records the result of an operation at a level matching its error kind.
func logOutcome(logger *slog.Logger, err error, msg string, attrs ...any) {
	if err == nil {
		logger.Info(msg, attrs...)
		return
	}
	attrs = append(attrs, "error_kind", ErrorKind(err), "error", err)
	if ErrorKind(err) == "unexpected" {
		logger.Error(msg+" failed", attrs...)
		return
	}
	logger.Warn(msg+" rejected", attrs...)
}
