package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/cutoff"
	"github.com/example/church-pickups/internal/recurrence"
)

const (
	// DefaultPreviewCount is used when a preview request omits the count.
	DefaultPreviewCount = 5
	// MaxPreviewCount bounds a single preview.
	MaxPreviewCount = 100

	maxServiceDayNameLength = 100
)

// ServiceDayService manages the service days members request rides to.
type ServiceDayService struct {
	days        ServiceDayRepository
	engine      *recurrence.Engine
	cache       *occurrenceCache
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewServiceDayService wires dependencies for service day operations.
func NewServiceDayService(days ServiceDayRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time) *ServiceDayService {
	return NewServiceDayServiceWithLogger(days, engine, idGenerator, now, nil)
}

// NewServiceDayServiceWithLogger wires dependencies and a base logger.
func NewServiceDayServiceWithLogger(days ServiceDayRepository, engine *recurrence.Engine, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ServiceDayService {
	if engine == nil {
		engine = recurrence.NewEngine(time.UTC)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ServiceDayService{
		days:        days,
		engine:      engine,
		cache:       newOccurrenceCache(5*time.Minute, 256, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// CreateServiceDay validates and persists a new active service day.
func (s *ServiceDayService) CreateServiceDay(ctx context.Context, params CreateServiceDayParams) (ServiceDay, error) {
	if s == nil {
		return ServiceDay{}, fmt.Errorf("ServiceDayService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ServiceDayService", "CreateServiceDay", "organization_id", params.Principal.OrganizationID)

	if !params.Principal.IsAdmin() {
		logOutcome(logger, ErrUnauthorized, "create service day")
		return ServiceDay{}, ErrUnauthorized
	}

	day, vErr := s.normalizeServiceDayInput(params.Input)
	if vErr.HasErrors() {
		logOutcome(logger, vErr, "create service day")
		return ServiceDay{}, vErr
	}

	createdAt := s.now()
	day.ID = s.idGenerator()
	day.OrganizationID = params.Principal.OrganizationID
	day.Active = true
	day.CreatedAt = createdAt
	day.UpdatedAt = createdAt

	if s.days == nil {
		return day, nil
	}

	persisted, err := s.days.CreateServiceDay(ctx, day)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "create service day")
		return ServiceDay{}, err
	}

	logOutcome(logger, nil, "service day created", "service_day_id", persisted.ID)
	return persisted, nil
}

// UpdateServiceDay replaces the schedule definition of an existing service day.
func (s *ServiceDayService) UpdateServiceDay(ctx context.Context, params UpdateServiceDayParams) (ServiceDay, error) {
	if s == nil {
		return ServiceDay{}, fmt.Errorf("ServiceDayService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ServiceDayService", "UpdateServiceDay",
		"organization_id", params.Principal.OrganizationID, "service_day_id", params.ServiceDayID)

	if !params.Principal.IsAdmin() {
		logOutcome(logger, ErrUnauthorized, "update service day")
		return ServiceDay{}, ErrUnauthorized
	}
	if s.days == nil {
		return ServiceDay{}, fmt.Errorf("service day repository not configured")
	}

	existing, err := s.days.GetServiceDay(ctx, params.Principal.OrganizationID, params.ServiceDayID)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "update service day")
		return ServiceDay{}, err
	}

	day, vErr := s.normalizeServiceDayInput(params.Input)
	if vErr.HasErrors() {
		logOutcome(logger, vErr, "update service day")
		return ServiceDay{}, vErr
	}

	day.ID = existing.ID
	day.OrganizationID = existing.OrganizationID
	day.Active = existing.Active
	day.CreatedAt = existing.CreatedAt
	day.UpdatedAt = s.now()

	persisted, err := s.days.UpdateServiceDay(ctx, day)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "update service day")
		return ServiceDay{}, err
	}
	s.cache.InvalidateServiceDay(persisted.ID)

	logOutcome(logger, nil, "service day updated")
	return persisted, nil
}

// DeactivateServiceDay hides a service day from new requests. Existing requests are kept.
func (s *ServiceDayService) DeactivateServiceDay(ctx context.Context, principal Principal, serviceDayID string) error {
	if s == nil {
		return fmt.Errorf("ServiceDayService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ServiceDayService", "DeactivateServiceDay",
		"organization_id", principal.OrganizationID, "service_day_id", serviceDayID)

	if !principal.IsAdmin() {
		logOutcome(logger, ErrUnauthorized, "deactivate service day")
		return ErrUnauthorized
	}
	if s.days == nil {
		return fmt.Errorf("service day repository not configured")
	}

	day, err := s.days.GetServiceDay(ctx, principal.OrganizationID, serviceDayID)
	if err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "deactivate service day")
		return err
	}
	if !day.Active {
		return nil
	}

	day.Active = false
	day.UpdatedAt = s.now()
	if _, err := s.days.UpdateServiceDay(ctx, day); err != nil {
		err = mapRepoError(err)
		logOutcome(logger, err, "deactivate service day")
		return err
	}
	s.cache.InvalidateServiceDay(serviceDayID)

	logOutcome(logger, nil, "service day deactivated")
	return nil
}

// GetServiceDay returns a service day of the principal's organization.
func (s *ServiceDayService) GetServiceDay(ctx context.Context, principal Principal, serviceDayID string) (ServiceDay, error) {
	if s == nil {
		return ServiceDay{}, fmt.Errorf("ServiceDayService is nil")
	}
	if s.days == nil {
		return ServiceDay{}, ErrNotFound
	}
	day, err := s.days.GetServiceDay(ctx, principal.OrganizationID, serviceDayID)
	if err != nil {
		return ServiceDay{}, mapRepoError(err)
	}
	if !day.Active && !principal.IsAdmin() {
		return ServiceDay{}, ErrNotFound
	}
	return day, nil
}

// ListServiceDays returns active service days. Administrators may include inactive ones.
func (s *ServiceDayService) ListServiceDays(ctx context.Context, principal Principal, includeInactive bool) ([]ServiceDay, error) {
	if s == nil {
		return nil, fmt.Errorf("ServiceDayService is nil")
	}
	if s.days == nil {
		return nil, nil
	}
	if !principal.IsAdmin() {
		includeInactive = false
	}

	days, err := s.days.ListServiceDays(ctx, principal.OrganizationID, includeInactive)
	if err != nil {
		return nil, mapRepoError(err)
	}

	out := make([]ServiceDay, len(days))
	copy(out, days)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Time == out[j].Time {
			return out[i].Name < out[j].Name
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

// PreviewOccurrences lists the next service starts of a service day after params.From.
func (s *ServiceDayService) PreviewOccurrences(ctx context.Context, params PreviewOccurrencesParams) ([]time.Time, error) {
	if s == nil {
		return nil, fmt.Errorf("ServiceDayService is nil")
	}
	logger := serviceLogger(ctx, s.logger, "ServiceDayService", "PreviewOccurrences",
		"organization_id", params.Principal.OrganizationID, "service_day_id", params.ServiceDayID)

	count := params.Count
	if count == 0 {
		count = DefaultPreviewCount
	}
	if count < 0 || count > MaxPreviewCount {
		vErr := newValidationError("count", fmt.Sprintf("count must be between 1 and %d", MaxPreviewCount))
		logOutcome(logger, vErr, "preview occurrences")
		return nil, vErr
	}

	day, err := s.GetServiceDay(ctx, params.Principal, params.ServiceDayID)
	if err != nil {
		logOutcome(logger, err, "preview occurrences")
		return nil, err
	}

	from := params.From
	if from.IsZero() {
		from = s.now()
	}
	from = s.engine.StartOfDay(from)

	key := buildOccurrenceCacheKey(day.OrganizationID, day.ID, from, count)
	if cached, ok := s.cache.Get(key); ok {
		logger.Debug("occurrence preview served from cache")
		return cached, nil
	}

	st, err := cutoff.ParseServiceTime(day.Time)
	if err != nil {
		return nil, fmt.Errorf("service day %s: %w", day.ID, err)
	}

	dates, err := s.engine.Expand(day.Rule(), from, count, nil)
	if err != nil {
		return nil, fmt.Errorf("resolve occurrences: %w", err)
	}

	starts := make([]time.Time, len(dates))
	for i, date := range dates {
		starts[i] = cutoff.ServiceStart(date, st, s.engine.Location())
	}
	s.cache.Store(key, day.ID, starts)

	logger.Debug("occurrence preview resolved", "count", len(starts))
	return cloneDates(starts), nil
}

func (s *ServiceDayService) normalizeServiceDayInput(input ServiceDayInput) (ServiceDay, *ValidationError) {
	vErr := &ValidationError{}
	day := ServiceDay{Name: strings.TrimSpace(input.Name)}

	if day.Name == "" {
		vErr.add("name", "name is required")
	} else if len(day.Name) > maxServiceDayNameLength {
		vErr.add("name", fmt.Sprintf("name must be at most %d characters", maxServiceDayNameLength))
	}

	if st, err := cutoff.ParseServiceTime(input.Time); err != nil {
		vErr.add("time", "time must be HH:MM with hour 0-23 and minute 0-59")
	} else {
		day.Time = st.String()
	}

	weekdays, err := recurrence.NormalizeWeekdays(input.Weekdays)
	switch {
	case errors.Is(err, recurrence.ErrNoWeekdays):
		vErr.add("weekdays", "at least one weekday is required")
	case err != nil:
		vErr.add("weekdays", "weekdays must be between 0 (Sunday) and 6 (Saturday)")
	}
	day.Weekdays = weekdays

	if frequency, err := recurrence.ParseFrequency(input.Frequency); err != nil {
		vErr.add("frequency", "frequency must be one of NONE, DAILY, WEEKLY, MONTHLY")
	} else {
		day.Frequency = frequency
	}

	if ordinal, err := recurrence.ParseOrdinal(input.Ordinal); err != nil {
		vErr.add("ordinal", "ordinal must be one of NEXT, FIRST, LAST")
	} else {
		day.Ordinal = ordinal
	}

	if input.StartDate != nil {
		start := s.engine.StartOfDay(*input.StartDate)
		day.StartDate = &start
	}
	if input.EndDate != nil {
		end := s.engine.StartOfDay(*input.EndDate)
		day.EndDate = &end
	}
	if day.StartDate != nil && day.EndDate != nil && day.EndDate.Before(*day.StartDate) {
		vErr.add("end_date", "end date must not be before start date")
	}

	if input.CycleCount != nil {
		if *input.CycleCount <= 0 {
			vErr.add("cycle_count", "cycle count must be positive")
		} else {
			count := *input.CycleCount
			day.CycleCount = &count
		}
	}

	return day, vErr
}
