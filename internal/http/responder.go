package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/church-pickups/internal/application"
)

// Stable error codes clients can switch on.
const (
	codeValidationFailed = "VALIDATION_FAILED"
	codeDuplicateRequest = "DUPLICATE_REQUEST"
	codeCutoffPassed     = "CUTOFF_PASSED"
	codeInvalidState     = "INVALID_STATE"
	codeAlreadyExists    = "ALREADY_EXISTS"
	codeForbidden        = "FORBIDDEN"
	codeNotFound         = "NOT_FOUND"
	codeUnauthenticated  = "UNAUTHENTICATED"
	codeBadRequest       = "BAD_REQUEST"
	codeInternal         = "INTERNAL"
)

var (
	errBadRequestBody = errors.New("request body is not valid JSON")
	errMissingToken   = errors.New("a bearer token is required")
	errInvalidToken   = errors.New("the bearer token is invalid or expired")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, code string, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, codeInternal, errors.New("unknown error"))
		return
	}

	var vErr *application.ValidationError
	switch {
	case errors.Is(err, application.ErrUnauthorized):
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode: codeForbidden,
			Message:   "you are not allowed to perform this operation",
		})
	case errors.Is(err, application.ErrNotFound):
		r.writeJSON(ctx, w, http.StatusNotFound, errorResponse{ErrorCode: codeNotFound, Message: "the requested resource was not found"})
	case errors.Is(err, application.ErrDuplicateRequest):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: codeDuplicateRequest, Message: err.Error()})
	case errors.Is(err, application.ErrCutoffPassed):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: codeCutoffPassed, Message: err.Error()})
	case errors.Is(err, application.ErrInvalidState):
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{ErrorCode: codeInvalidState, Message: err.Error()})
	case errors.Is(err, application.ErrAlreadyExists):
		r.writeJSON(ctx, w, http.StatusConflict, errorResponse{ErrorCode: codeAlreadyExists, Message: err.Error()})
	case errors.As(err, &vErr):
		r.writeValidationError(ctx, w, vErr)
	default:
		r.loggerFor(ctx).ErrorContext(ctx, "unexpected service error", "error", err)
		r.writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{ErrorCode: codeInternal, Message: "an internal error occurred"})
	}
}

func (r responder) writeValidationError(ctx context.Context, w http.ResponseWriter, vErr *application.ValidationError) {
	r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
		ErrorCode: codeValidationFailed,
		Message:   "the request contains invalid fields",
		Errors:    vErr.FieldErrors,
	})
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (r responder) handleDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeValidationError(ctx, w, vErr)
		return
	}
	r.writeError(ctx, w, http.StatusBadRequest, codeBadRequest, err)
}
