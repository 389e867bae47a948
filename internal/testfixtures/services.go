package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/cutoff"
	"github.com/example/church-pickups/internal/geo"
	"github.com/example/church-pickups/internal/recurrence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Engine      *recurrence.Engine
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Engine:      recurrence.NewEngine(time.UTC),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Engine == nil {
		factory.Engine = recurrence.NewEngine(time.UTC)
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLocation resolves service days in loc instead of UTC.
func WithLocation(loc *time.Location) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Engine = recurrence.NewEngine(loc)
	}
}

// WithLogger sets the base logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// NewServiceDayService builds a service day service over days.
func (f *ServiceFactory) NewServiceDayService(days application.ServiceDayRepository) *application.ServiceDayService {
	return application.NewServiceDayServiceWithLogger(days, f.Engine, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// UserServiceDeps captures dependencies for constructing a user service.
type UserServiceDeps struct {
	Users     application.UserRepository
	Addresses application.AddressRepository
	Geocoder  geo.Geocoder
}

// NewUserService builds a user service using the supplied dependencies.
func (f *ServiceFactory) NewUserService(deps UserServiceDeps) *application.UserService {
	return application.NewUserServiceWithLogger(
		deps.Users,
		deps.Addresses,
		deps.Geocoder,
		f.IDGenerator.NextFunc(),
		f.Clock.NowFunc(),
		f.Logger,
	)
}

// PickupServiceDeps captures dependencies for constructing a pickup service.
type PickupServiceDeps struct {
	Requests    application.PickupRepository
	ServiceDays application.ServiceDayRepository
	Users       application.UserRepository
	Addresses   application.AddressRepository
	// Policy defaults to cutoff.DefaultPolicy when nil.
	Policy     *cutoff.Policy
	Dispatcher *application.Dispatcher
	MaxSeries  int
}

// NewPickupService builds a pickup service sharing the factory's engine, clock and ids.
func (f *ServiceFactory) NewPickupService(deps PickupServiceDeps) *application.PickupService {
	return application.NewPickupService(application.PickupServiceConfig{
		Requests:             deps.Requests,
		ServiceDays:          deps.ServiceDays,
		Users:                deps.Users,
		Addresses:            deps.Addresses,
		Engine:               f.Engine,
		Policy:               deps.Policy,
		Dispatcher:           deps.Dispatcher,
		MaxSeriesOccurrences: deps.MaxSeries,
		IDGenerator:          f.IDGenerator.NextFunc(),
		Now:                  f.Clock.NowFunc(),
		Logger:               f.Logger,
	})
}
