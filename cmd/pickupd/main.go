package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/auth"
	"github.com/example/church-pickups/internal/config"
	"github.com/example/church-pickups/internal/cutoff"
	"github.com/example/church-pickups/internal/geo"
	httptransport "github.com/example/church-pickups/internal/http"
	"github.com/example/church-pickups/internal/logging"
	"github.com/example/church-pickups/internal/persistence/sqlite"
	"github.com/example/church-pickups/internal/recurrence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, slog.LevelInfo).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("pickup service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	storage, err := sqlite.Open(ctx, cfg.SQLitePath, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	api := newAPI(cfg, storage, logger, dependencies{})
	defer api.Close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("pickup API listening", "addr", server.Addr, "timezone", cfg.Location.String())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// dependencies overrides collaborators that default to production values.
type dependencies struct {
	Geocoder    geo.Geocoder
	Notifier    application.Notifier
	Analytics   application.AnalyticsSink
	IDGenerator func() string
	Now         func() time.Time
}

type api struct {
	Handler    http.Handler
	dispatcher *application.Dispatcher
}

func newAPI(cfg config.Config, storage *sqlite.Storage, logger *slog.Logger, deps dependencies) *api {
	if deps.IDGenerator == nil {
		deps.IDGenerator = uuid.NewString
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Geocoder == nil {
		deps.Geocoder = geo.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, &http.Client{Timeout: 10 * time.Second})
	}

	engine := recurrence.NewEngine(cfg.Location)
	users := newUserRepositoryAdapter(storage)
	addresses := newAddressRepositoryAdapter(storage)
	days := newServiceDayRepositoryAdapter(storage)
	requests := newPickupRepositoryAdapter(storage)
	dispatcher := application.NewDispatcher(deps.Notifier, deps.Analytics, logger)

	serviceDayService := application.NewServiceDayServiceWithLogger(days, engine, deps.IDGenerator, deps.Now, logger)
	userService := application.NewUserServiceWithLogger(users, addresses, deps.Geocoder, deps.IDGenerator, deps.Now, logger)
	pickupService := application.NewPickupService(application.PickupServiceConfig{
		Requests:    requests,
		ServiceDays: days,
		Users:       users,
		Addresses:   addresses,
		Engine:      engine,
		Policy: &cutoff.Policy{
			CreateBuffer: cfg.CreateBuffer,
			CancelBuffer: cfg.CancelBuffer,
		},
		Guard:                application.NewConflictGuard(),
		Dispatcher:           dispatcher,
		MaxSeriesOccurrences: cfg.MaxSeriesOccurrences,
		IDGenerator:          deps.IDGenerator,
		Now:                  deps.Now,
		Logger:               logger,
	})

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, deps.Now)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		ServiceDays:  httptransport.NewServiceDayHandler(serviceDayService, cfg.Location, logger),
		Pickups:      httptransport.NewPickupHandler(pickupService, cfg.Location, logger),
		Users:        httptransport.NewUserHandler(userService, logger),
		Health:       storage,
		Authenticate: httptransport.RequireAuth(verifier, logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	return &api{Handler: router, dispatcher: dispatcher}
}

// Close waits for background notification and analytics deliveries.
func (a *api) Close() {
	a.dispatcher.Close()
}
