package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/auth"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// RequireAuth resolves the bearer token into an application.Principal.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errMissingToken)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrMissingToken) {
					responder.loggerFor(r.Context()).ErrorContext(r.Context(), "token verification failed", "error", err)
				}
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errInvalidToken)
				return
			}

			principal, ok := principalFromIdentity(identity)
			if !ok {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, codeUnauthenticated, errInvalidToken)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			if logger := LoggerFromContext(ctx); logger != nil {
				ctx = ContextWithLogger(ctx, logger.With(
					"principal_id", principal.UserID,
					"organization_id", principal.OrganizationID,
				))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromIdentity(identity auth.Identity) (application.Principal, bool) {
	role := application.Role(strings.ToUpper(identity.Role))
	switch role {
	case application.RoleUser, application.RoleDriver, application.RoleAdmin:
	default:
		return application.Principal{}, false
	}
	return application.Principal{
		UserID:         identity.UserID,
		OrganizationID: identity.OrganizationID,
		Role:           role,
	}, true
}

// RequestLogger attaches a request scoped logger carrying a request id. An
// incoming X-Request-ID is reused; otherwise a UUID is generated.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.DebugContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}
