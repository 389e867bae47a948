package http

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker reports whether backing storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	ServiceDays *ServiceDayHandler
	Pickups     *PickupHandler
	Users       *UserHandler
	Health      HealthChecker
	// Authenticate guards every route except /signup and /healthz.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	auth := cfg.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}
	private := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	mux.HandleFunc("GET /healthz", healthHandler(cfg.Health))

	if cfg.Users != nil {
		mux.HandleFunc("POST /signup", cfg.Users.Signup)
		private("GET /users", cfg.Users.List)
		private("POST /users/{id}/approve", cfg.Users.Approve)
		private("GET /users/{id}/addresses", cfg.Users.ListAddresses)
		private("POST /users/{id}/addresses", cfg.Users.AddAddress)
	}

	if cfg.ServiceDays != nil {
		private("GET /service-days", cfg.ServiceDays.List)
		private("POST /service-days", cfg.ServiceDays.Create)
		private("GET /service-days/{id}", cfg.ServiceDays.Get)
		private("PUT /service-days/{id}", cfg.ServiceDays.Update)
		private("DELETE /service-days/{id}", cfg.ServiceDays.Deactivate)
		private("GET /service-days/{id}/occurrences", cfg.ServiceDays.Occurrences)
	}

	if cfg.Pickups != nil {
		private("GET /pickup-requests", cfg.Pickups.List)
		private("POST /pickup-requests", cfg.Pickups.Create)
		private("GET /pickup-requests/{id}", cfg.Pickups.Get)
		private("PATCH /pickup-requests/{id}", cfg.Pickups.Update)
		private("GET /pickup-requests/{id}/events", cfg.Pickups.Events)
		private("POST /pickup-requests/{id}/accept", cfg.Pickups.Accept)
		private("POST /pickup-requests/{id}/release", cfg.Pickups.Release)
		private("POST /pickup-requests/{id}/cancel", cfg.Pickups.Cancel)
		private("POST /pickup-requests/{id}/complete", cfg.Pickups.Complete)
		private("POST /pickup-series/{id}/cancel", cfg.Pickups.CancelSeries)
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.Ping(ctx); err != nil {
				handlerLogger(r.Context(), nil, "health", "Ping").WarnContext(r.Context(), "health check failed", "error", err)
				status = http.StatusServiceUnavailable
				body["status"] = "unavailable"
			}
		}
		newResponder(nil).writeJSON(r.Context(), w, status, body)
	}
}
