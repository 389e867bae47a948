package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/example/church-pickups/internal/cutoff"
	"github.com/example/church-pickups/internal/geo"
	"github.com/example/church-pickups/internal/pickup"
	"github.com/example/church-pickups/internal/recurrence"
)

const (
	// DefaultMaxSeriesOccurrences caps the requests one recurring submission creates.
	DefaultMaxSeriesOccurrences = 52

	maxNotesLength = 500
	maxGroupSize   = 20
)

// PickupServiceConfig wires the collaborators of a PickupService.
type PickupServiceConfig struct {
	Requests    PickupRepository
	ServiceDays ServiceDayRepository
	Users       UserRepository
	Addresses   AddressRepository
	Engine      *recurrence.Engine
	// Policy defaults to cutoff.DefaultPolicy when nil. Zero buffers disable the cutoffs.
	Policy     *cutoff.Policy
	Guard       *ConflictGuard
	Dispatcher  *Dispatcher
	// MaxSeriesOccurrences bounds a recurring submission including its first date.
	MaxSeriesOccurrences int
	IDGenerator          func() string
	Now                  func() time.Time
	Logger               *slog.Logger
}

// PickupService orchestrates the lifecycle of pickup requests.
type PickupService struct {
	requests    PickupRepository
	days        ServiceDayRepository
	users       UserRepository
	addresses   AddressRepository
	engine      *recurrence.Engine
	policy      cutoff.Policy
	guard       *ConflictGuard
	dispatcher  *Dispatcher
	maxSeries   int
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPickupService applies defaults to cfg and returns the service.
func NewPickupService(cfg PickupServiceConfig) *PickupService {
	if cfg.Engine == nil {
		cfg.Engine = recurrence.NewEngine(time.UTC)
	}
	policy := cutoff.DefaultPolicy()
	if cfg.Policy != nil {
		policy = *cfg.Policy
	}
	if cfg.Guard == nil {
		cfg.Guard = NewConflictGuard()
	}
	if cfg.MaxSeriesOccurrences <= 0 {
		cfg.MaxSeriesOccurrences = DefaultMaxSeriesOccurrences
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = func() string { return "" }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PickupService{
		requests:    cfg.Requests,
		days:        cfg.ServiceDays,
		users:       cfg.Users,
		addresses:   cfg.Addresses,
		engine:      cfg.Engine,
		policy:      policy,
		guard:       cfg.Guard,
		dispatcher:  cfg.Dispatcher,
		maxSeries:   cfg.MaxSeriesOccurrences,
		idGenerator: cfg.IDGenerator,
		now:         cfg.Now,
		logger:      defaultLogger(cfg.Logger),
	}
}

// CreateRequest books a ride for one service date, or for every following
// service date up to the input end date when the request is recurring.
func (s *PickupService) CreateRequest(ctx context.Context, params CreatePickupRequestParams) (CreatePickupRequestResult, error) {
	if s == nil {
		return CreatePickupRequestResult{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	input := params.Input
	if input.UserID == "" {
		input.UserID = principal.UserID
	}

	logger := serviceLogger(ctx, s.logger, "PickupService", "CreateRequest",
		"organization_id", principal.OrganizationID, "user_id", input.UserID, "service_day_id", input.ServiceDayID)

	fail := func(err error) (CreatePickupRequestResult, error) {
		logOutcome(logger, err, "create pickup request")
		return CreatePickupRequestResult{}, err
	}

	if input.UserID != principal.UserID && !principal.IsAdmin() {
		return fail(ErrUnauthorized)
	}

	if vErr := validatePickupRequestInput(&input); vErr.HasErrors() {
		return fail(vErr)
	}
	if s.requests == nil || s.days == nil || s.users == nil || s.addresses == nil {
		return fail(fmt.Errorf("pickup service repositories not configured"))
	}

	owner, err := s.users.GetUser(ctx, principal.OrganizationID, input.UserID)
	if err != nil {
		return fail(mapRepoError(err))
	}
	if owner.Status != UserStatusActive {
		return fail(newValidationError("user_id", "user is not active"))
	}

	day, err := s.days.GetServiceDay(ctx, principal.OrganizationID, input.ServiceDayID)
	if err != nil {
		return fail(mapRepoError(err))
	}
	if !day.Active {
		return fail(newValidationError("service_day_id", "service day is not active"))
	}
	st, err := cutoff.ParseServiceTime(day.Time)
	if err != nil {
		return fail(fmt.Errorf("service day %s: %w", day.ID, err))
	}

	requestDay := s.engine.StartOfDay(input.RequestDate)
	if vErr := s.validateDayOfWeek(day, requestDay); vErr.HasErrors() {
		return fail(vErr)
	}

	createdAt := s.now()
	anchorStart := cutoff.ServiceStart(requestDay, st, s.engine.Location())
	if err := s.policy.Check(cutoff.ActionCreate, pickup.StatusPending, anchorStart, createdAt); err != nil {
		return fail(mapCutoffError(err))
	}

	address, err := s.addresses.GetAddress(ctx, principal.OrganizationID, input.AddressID)
	if err != nil {
		if isNotFoundError(err) {
			return fail(newValidationError("address_id", "address not found"))
		}
		return fail(mapRepoError(err))
	}
	if address.UserID != input.UserID {
		return fail(newValidationError("address_id", "address does not belong to user"))
	}

	dates := []time.Time{requestDay}
	if input.Recurring {
		followUps, err := s.followUpDates(day, requestDay, *input.EndDate)
		if err != nil {
			return fail(err)
		}
		dates = append(dates, followUps...)
	}

	var seriesID *string
	if input.Recurring {
		id := s.idGenerator()
		seriesID = &id
	}

	requests := make([]PickupRequest, len(dates))
	for i, date := range dates {
		requests[i] = PickupRequest{
			ID:             s.idGenerator(),
			OrganizationID: principal.OrganizationID,
			UserID:         input.UserID,
			ServiceDayID:   day.ID,
			AddressID:      address.ID,
			RequestDate:    cutoff.ServiceStart(date, st, s.engine.Location()).UTC(),
			ServiceDate:    s.engine.DateKey(date),
			Status:         pickup.StatusPending,
			SeriesID:       seriesID,
			Pickup:         input.Pickup,
			DropOff:        input.DropOff,
			GroupRide:      input.GroupRide,
			GroupSize:      input.GroupSize,
			Notes:          input.Notes,
			CreatedAt:      createdAt,
			UpdatedAt:      createdAt,
		}
	}

	err = s.requests.WithinTransaction(ctx, principal.OrganizationID, func(tx PickupTx) error {
		anchor := requests[0]
		if err := s.guard.AssertNoDuplicate(ctx, tx, SlotKey{UserID: anchor.UserID, ServiceDayID: anchor.ServiceDayID, ServiceDate: anchor.ServiceDate}); err != nil {
			return err
		}
		if len(requests) > 1 {
			if err := s.guard.AssertNoConflicts(ctx, tx, requests); err != nil {
				return err
			}
		}
		if seriesID != nil {
			if err := tx.CreateSeries(ctx, PickupSeries{ID: *seriesID, OrganizationID: principal.OrganizationID, CreatedAt: createdAt}); err != nil {
				return err
			}
		}
		for _, request := range requests {
			if err := tx.CreateRequest(ctx, request); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, s.newEvent(request, EventCreated, principal.UserID, "", createdAt)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fail(mapPickupRepoError(err))
	}

	s.dispatcher.Track(ctx, AnalyticsEvent{
		OrganizationID: principal.OrganizationID,
		Name:           "pickup_request.created",
		UserID:         input.UserID,
		Properties: map[string]any{
			"service_day_id": day.ID,
			"count":          len(requests),
			"recurring":      input.Recurring,
			"group_ride":     input.GroupRide,
		},
		OccurredAt: createdAt,
	})

	logOutcome(logger, nil, "pickup request created", "count", len(requests))
	return CreatePickupRequestResult{SeriesID: seriesID, Requests: requests}, nil
}

// UpdateRequest edits the ride details of a pending request before the edit cutoff.
func (s *PickupService) UpdateRequest(ctx context.Context, params UpdatePickupRequestParams) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "UpdateRequest",
		"organization_id", principal.OrganizationID, "request_id", params.RequestID)

	if s.requests == nil {
		return PickupRequest{}, fmt.Errorf("pickup repository not configured")
	}

	vErr := &ValidationError{}
	if params.Notes != nil && len(*params.Notes) > maxNotesLength {
		vErr.add("notes", fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}
	if params.GroupSize != nil && (*params.GroupSize < 1 || *params.GroupSize > maxGroupSize) {
		vErr.add("group_size", fmt.Sprintf("group size must be between 1 and %d", maxGroupSize))
	}
	if vErr.HasErrors() {
		logOutcome(logger, vErr, "update pickup request")
		return PickupRequest{}, vErr
	}

	var updated PickupRequest
	err := s.requests.WithinTransaction(ctx, principal.OrganizationID, func(tx PickupTx) error {
		request, err := tx.GetRequest(ctx, params.RequestID)
		if err != nil {
			return err
		}
		if request.UserID != principal.UserID && !principal.IsAdmin() {
			return ErrUnauthorized
		}
		if request.Status != pickup.StatusPending {
			return fmt.Errorf("%w: only pending requests can be edited", ErrInvalidState)
		}
		if err := s.policy.Check(cutoff.ActionEdit, request.Status, request.RequestDate, s.now()); err != nil {
			return mapCutoffError(err)
		}

		if params.AddressID != nil && *params.AddressID != request.AddressID {
			if s.addresses == nil {
				return fmt.Errorf("address repository not configured")
			}
			address, err := s.addresses.GetAddress(ctx, principal.OrganizationID, *params.AddressID)
			if err != nil {
				if isNotFoundError(err) {
					return newValidationError("address_id", "address not found")
				}
				return err
			}
			if address.UserID != request.UserID {
				return newValidationError("address_id", "address does not belong to user")
			}
			request.AddressID = address.ID
		}
		if params.Pickup != nil {
			request.Pickup = *params.Pickup
		}
		if params.DropOff != nil {
			request.DropOff = *params.DropOff
		}
		if params.GroupRide != nil {
			request.GroupRide = *params.GroupRide
		}
		if params.GroupSize != nil {
			request.GroupSize = *params.GroupSize
		}
		if !request.GroupRide {
			request.GroupSize = 1
		}
		if params.Notes != nil {
			request.Notes = strings.TrimSpace(*params.Notes)
		}
		if !request.Pickup && !request.DropOff {
			return newValidationError("pickup", "pickup or drop off is required")
		}

		request.UpdatedAt = s.now()
		if err := tx.UpdateRequest(ctx, request); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		err = mapPickupRepoError(err)
		logOutcome(logger, err, "update pickup request")
		return PickupRequest{}, err
	}

	logOutcome(logger, nil, "pickup request updated")
	return updated, nil
}

// AcceptRequest assigns a driver to a pending request. Drivers accept for
// themselves; administrators assign any active driver.
func (s *PickupService) AcceptRequest(ctx context.Context, params TransitionParams) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "AcceptRequest",
		"organization_id", principal.OrganizationID, "request_id", params.RequestID)

	fail := func(err error) (PickupRequest, error) {
		logOutcome(logger, err, "accept pickup request")
		return PickupRequest{}, err
	}

	driverID := principal.UserID
	switch {
	case principal.IsAdmin():
		if params.DriverID == "" {
			return fail(newValidationError("driver_id", "driver_id is required"))
		}
		driverID = params.DriverID
	case principal.IsDriver():
		if params.DriverID != "" && params.DriverID != principal.UserID {
			return fail(ErrUnauthorized)
		}
	default:
		return fail(ErrUnauthorized)
	}
	if s.requests == nil || s.users == nil {
		return fail(fmt.Errorf("pickup service repositories not configured"))
	}

	driver, err := s.users.GetUser(ctx, principal.OrganizationID, driverID)
	if err != nil {
		if isNotFoundError(err) && principal.IsAdmin() {
			return fail(newValidationError("driver_id", "driver not found"))
		}
		return fail(mapRepoError(err))
	}
	if driver.Role != RoleDriver || driver.Status != UserStatusActive {
		if principal.IsAdmin() {
			return fail(newValidationError("driver_id", "driver must be an active driver"))
		}
		return fail(ErrUnauthorized)
	}

	current, err := s.requests.GetRequest(ctx, principal.OrganizationID, params.RequestID)
	if err != nil {
		return fail(mapRepoError(err))
	}
	distance := s.driverDistance(ctx, logger, principal.OrganizationID, driverID, current.AddressID)

	accepted, err := s.applyTransition(ctx, principal, transitionStep{
		requestID: params.RequestID,
		event:     pickup.EventAccept,
		kind:      EventAccepted,
		note:      params.Note,
		authorize: func(PickupRequest) error { return nil },
		mutate: func(request *PickupRequest) {
			request.DriverID = &driverID
			request.DistanceKm = distance
		},
	})
	if err != nil {
		return fail(err)
	}

	s.dispatcher.Notify(ctx, Notification{
		OrganizationID: principal.OrganizationID,
		UserID:         accepted.UserID,
		RequestID:      accepted.ID,
		Kind:           EventAccepted,
		Message:        fmt.Sprintf("%s accepted your ride on %s", driver.Name, s.formatServiceStart(accepted.RequestDate)),
	})
	s.track(ctx, principal, "pickup_request.accepted", accepted)

	logOutcome(logger, nil, "pickup request accepted", "driver_id", driverID)
	return accepted, nil
}

// ReleaseRequest returns an accepted request to the open pool when the driver backs out.
func (s *PickupService) ReleaseRequest(ctx context.Context, params TransitionParams) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "ReleaseRequest",
		"organization_id", principal.OrganizationID, "request_id", params.RequestID)

	note := strings.TrimSpace(params.Note)
	if note == "" {
		note = "driver cancelled"
	}

	var previousDriver string
	released, err := s.applyTransition(ctx, principal, transitionStep{
		requestID: params.RequestID,
		event:     pickup.EventRelease,
		kind:      EventReleased,
		note:      note,
		authorize: func(request PickupRequest) error {
			if principal.IsAdmin() || isAssignedDriver(principal, request) {
				return nil
			}
			return ErrUnauthorized
		},
		mutate: func(request *PickupRequest) {
			if request.DriverID != nil {
				previousDriver = *request.DriverID
			}
			request.DriverID = nil
			request.DistanceKm = nil
		},
	})
	if err != nil {
		logOutcome(logger, err, "release pickup request")
		return PickupRequest{}, err
	}

	s.dispatcher.Notify(ctx, Notification{
		OrganizationID: principal.OrganizationID,
		UserID:         released.UserID,
		RequestID:      released.ID,
		Kind:           EventReleased,
		Message:        fmt.Sprintf("Your driver for %s cancelled: %s", s.formatServiceStart(released.RequestDate), note),
	})
	s.track(ctx, principal, "pickup_request.released", released)

	logOutcome(logger, nil, "pickup request released", "driver_id", previousDriver)
	return released, nil
}

// CancelRequest withdraws a request. Accepted requests honour the cancel cutoff.
func (s *PickupService) CancelRequest(ctx context.Context, params TransitionParams) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "CancelRequest",
		"organization_id", principal.OrganizationID, "request_id", params.RequestID)

	cancelled, err := s.applyTransition(ctx, principal, transitionStep{
		requestID: params.RequestID,
		event:     pickup.EventCancel,
		kind:      EventCancelled,
		note:      params.Note,
		authorize: func(request PickupRequest) error {
			if principal.IsAdmin() || request.UserID == principal.UserID {
				return nil
			}
			return ErrUnauthorized
		},
		check: func(request PickupRequest) error {
			return mapCutoffError(s.policy.Check(cutoff.ActionCancel, request.Status, request.RequestDate, s.now()))
		},
	})
	if err != nil {
		logOutcome(logger, err, "cancel pickup request")
		return PickupRequest{}, err
	}

	if cancelled.DriverID != nil {
		s.dispatcher.Notify(ctx, Notification{
			OrganizationID: principal.OrganizationID,
			UserID:         *cancelled.DriverID,
			RequestID:      cancelled.ID,
			Kind:           EventCancelled,
			Message:        fmt.Sprintf("The ride on %s was cancelled", s.formatServiceStart(cancelled.RequestDate)),
		})
	}
	s.track(ctx, principal, "pickup_request.cancelled", cancelled)

	logOutcome(logger, nil, "pickup request cancelled")
	return cancelled, nil
}

// CompleteRequest marks an accepted ride as done.
func (s *PickupService) CompleteRequest(ctx context.Context, params TransitionParams) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "CompleteRequest",
		"organization_id", principal.OrganizationID, "request_id", params.RequestID)

	completed, err := s.applyTransition(ctx, principal, transitionStep{
		requestID: params.RequestID,
		event:     pickup.EventComplete,
		kind:      EventCompleted,
		note:      params.Note,
		authorize: func(request PickupRequest) error {
			if principal.IsAdmin() || isAssignedDriver(principal, request) {
				return nil
			}
			return ErrUnauthorized
		},
	})
	if err != nil {
		logOutcome(logger, err, "complete pickup request")
		return PickupRequest{}, err
	}

	s.track(ctx, principal, "pickup_request.completed", completed)
	logOutcome(logger, nil, "pickup request completed")
	return completed, nil
}

// CancelSeries cancels every request of a recurring submission that can still be cancelled.
func (s *PickupService) CancelSeries(ctx context.Context, params CancelSeriesParams) (CancelSeriesResult, error) {
	if s == nil {
		return CancelSeriesResult{}, fmt.Errorf("PickupService is nil")
	}
	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, "PickupService", "CancelSeries",
		"organization_id", principal.OrganizationID, "series_id", params.SeriesID)

	if s.requests == nil {
		return CancelSeriesResult{}, fmt.Errorf("pickup repository not configured")
	}

	var result CancelSeriesResult
	var notify []PickupRequest
	err := s.requests.WithinTransaction(ctx, principal.OrganizationID, func(tx PickupTx) error {
		requests, err := tx.ListSeriesRequests(ctx, params.SeriesID)
		if err != nil {
			return err
		}
		if len(requests) == 0 {
			return ErrNotFound
		}
		if !principal.IsAdmin() {
			for _, request := range requests {
				if request.UserID != principal.UserID {
					return ErrUnauthorized
				}
			}
		}

		at := s.now()
		for _, request := range requests {
			next, err := pickup.Transition(request.Status, pickup.EventCancel)
			if err != nil {
				result.Skipped++
				continue
			}
			if !s.policy.Allowed(cutoff.ActionCancel, request.Status, request.RequestDate, at) {
				result.Skipped++
				continue
			}
			request.Status = next
			request.UpdatedAt = at
			if err := tx.UpdateRequest(ctx, request); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, s.newEvent(request, EventCancelled, principal.UserID, "series cancelled", at)); err != nil {
				return err
			}
			result.Cancelled++
			if request.DriverID != nil {
				notify = append(notify, request)
			}
		}
		return nil
	})
	if err != nil {
		err = mapPickupRepoError(err)
		logOutcome(logger, err, "cancel pickup series")
		return CancelSeriesResult{}, err
	}

	for _, request := range notify {
		s.dispatcher.Notify(ctx, Notification{
			OrganizationID: principal.OrganizationID,
			UserID:         *request.DriverID,
			RequestID:      request.ID,
			Kind:           EventCancelled,
			Message:        fmt.Sprintf("The ride on %s was cancelled", s.formatServiceStart(request.RequestDate)),
		})
	}

	logOutcome(logger, nil, "pickup series cancelled", "cancelled", result.Cancelled, "skipped", result.Skipped)
	return result, nil
}

// ListRequests returns the requests visible to the principal. Users see their
// own, drivers see their assignments plus open pending requests, and
// administrators see the whole organization.
func (s *PickupService) ListRequests(ctx context.Context, params ListPickupRequestsParams) ([]PickupRequest, error) {
	if s == nil {
		return nil, fmt.Errorf("PickupService is nil")
	}
	if s.requests == nil {
		return nil, nil
	}

	filter := s.buildListFilter(params)
	requests, err := s.requests.ListRequests(ctx, params.Principal.OrganizationID, filter)
	if err != nil {
		err = mapRepoError(err)
		logger := serviceLogger(ctx, s.logger, "PickupService", "ListRequests", "organization_id", params.Principal.OrganizationID)
		logOutcome(logger, err, "list pickup requests")
		return nil, err
	}
	return requests, nil
}

// GetRequest returns one request if the principal may see it.
func (s *PickupService) GetRequest(ctx context.Context, principal Principal, requestID string) (PickupRequest, error) {
	if s == nil {
		return PickupRequest{}, fmt.Errorf("PickupService is nil")
	}
	if s.requests == nil {
		return PickupRequest{}, ErrNotFound
	}
	request, err := s.requests.GetRequest(ctx, principal.OrganizationID, requestID)
	if err != nil {
		return PickupRequest{}, mapRepoError(err)
	}
	if !canView(principal, request) {
		return PickupRequest{}, ErrUnauthorized
	}
	return request, nil
}

// ListEvents returns the audit trail of a request visible to the principal.
func (s *PickupService) ListEvents(ctx context.Context, principal Principal, requestID string) ([]PickupEvent, error) {
	if _, err := s.GetRequest(ctx, principal, requestID); err != nil {
		return nil, err
	}
	events, err := s.requests.ListEvents(ctx, principal.OrganizationID, requestID)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return events, nil
}

type transitionStep struct {
	requestID string
	event     pickup.Event
	kind      EventKind
	note      string
	authorize func(request PickupRequest) error
	// check runs after the transition is known to be legal.
	check  func(request PickupRequest) error
	mutate func(request *PickupRequest)
}

func (s *PickupService) applyTransition(ctx context.Context, principal Principal, step transitionStep) (PickupRequest, error) {
	if s.requests == nil {
		return PickupRequest{}, fmt.Errorf("pickup repository not configured")
	}

	var updated PickupRequest
	err := s.requests.WithinTransaction(ctx, principal.OrganizationID, func(tx PickupTx) error {
		request, err := tx.GetRequest(ctx, step.requestID)
		if err != nil {
			return err
		}
		if err := step.authorize(request); err != nil {
			return err
		}
		next, err := pickup.Transition(request.Status, step.event)
		if err != nil {
			return mapTransitionError(err)
		}
		if step.check != nil {
			if err := step.check(request); err != nil {
				return err
			}
		}
		if step.mutate != nil {
			step.mutate(&request)
		}

		at := s.now()
		request.Status = next
		request.UpdatedAt = at
		if err := tx.UpdateRequest(ctx, request); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, s.newEvent(request, step.kind, principal.UserID, strings.TrimSpace(step.note), at)); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		return PickupRequest{}, mapPickupRepoError(err)
	}
	return updated, nil
}

// validateDayOfWeek rejects dates that are not service dates of day.
func (s *PickupService) validateDayOfWeek(day ServiceDay, requestDay time.Time) *ValidationError {
	vErr := &ValidationError{}
	notServiceDay := fmt.Sprintf("%s is not a %s service day", requestDay.Format(time.DateOnly), day.Name)
	if !s.engine.FallsOn(requestDay, day.Weekdays) {
		vErr.add("request_date", notServiceDay)
		return vErr
	}
	if day.StartDate != nil && requestDay.Before(s.engine.CalendarDate(*day.StartDate)) {
		vErr.add("request_date", "date is before the service day starts")
	}
	if day.EndDate != nil && requestDay.After(s.engine.CalendarDate(*day.EndDate)) {
		vErr.add("request_date", "date is after the service day ends")
	}
	if vErr.HasErrors() || !pinnedMonthly(day) {
		return vErr
	}

	// FIRST and LAST rules hit one weekday per month; the date must be that one.
	rule := day.Rule()
	rule.StartsOn, rule.EndsOn, rule.CycleCount = nil, nil, nil
	dates, err := s.engine.Expand(rule, requestDay.AddDate(0, 0, -1), 1, &requestDay)
	if err != nil || len(dates) == 0 || !dates[0].Equal(requestDay) {
		vErr.add("request_date", notServiceDay)
	}
	return vErr
}

func pinnedMonthly(day ServiceDay) bool {
	return day.Frequency == recurrence.FrequencyMonthly &&
		(day.Ordinal == recurrence.OrdinalFirst || day.Ordinal == recurrence.OrdinalLast)
}

func (s *PickupService) followUpDates(day ServiceDay, requestDay, endDate time.Time) ([]time.Time, error) {
	limit := s.maxSeries - 1
	if day.CycleCount != nil && *day.CycleCount-1 < limit {
		limit = *day.CycleCount - 1
	}
	if limit <= 0 {
		return nil, nil
	}

	rule := day.Rule()
	rule.CycleCount = nil
	end := s.engine.StartOfDay(endDate)
	dates, err := s.engine.Expand(rule, requestDay, limit, &end)
	if err != nil {
		return nil, fmt.Errorf("resolve occurrences: %w", err)
	}
	return dates, nil
}

func (s *PickupService) driverDistance(ctx context.Context, logger *slog.Logger, organizationID, driverID, addressID string) *float64 {
	if s.addresses == nil {
		return nil
	}
	requestAddress, err := s.addresses.GetAddress(ctx, organizationID, addressID)
	if err != nil {
		logger.Warn("request address unavailable for distance", "error", err)
		return nil
	}
	driverAddresses, err := s.addresses.ListAddressesForUser(ctx, organizationID, driverID)
	if err != nil {
		logger.Warn("driver address unavailable for distance", "error", err)
		return nil
	}
	if len(driverAddresses) == 0 || !requestAddress.Point().Valid() || !driverAddresses[0].Point().Valid() {
		return nil
	}
	km := math.Round(geo.Distance(driverAddresses[0].Point(), requestAddress.Point())*100) / 100
	return &km
}

func (s *PickupService) newEvent(request PickupRequest, kind EventKind, actorID, note string, at time.Time) PickupEvent {
	return PickupEvent{
		ID:             s.idGenerator(),
		OrganizationID: request.OrganizationID,
		RequestID:      request.ID,
		Kind:           kind,
		ActorID:        actorID,
		Note:           note,
		CreatedAt:      at,
	}
}

func (s *PickupService) track(ctx context.Context, principal Principal, name string, request PickupRequest) {
	props := map[string]any{
		"request_id":     request.ID,
		"service_day_id": request.ServiceDayID,
		"status":         string(request.Status),
	}
	if request.DistanceKm != nil {
		props["distance_km"] = *request.DistanceKm
	}
	s.dispatcher.Track(ctx, AnalyticsEvent{
		OrganizationID: principal.OrganizationID,
		Name:           name,
		UserID:         principal.UserID,
		Properties:     props,
		OccurredAt:     s.now(),
	})
}

func (s *PickupService) formatServiceStart(t time.Time) string {
	return t.In(s.engine.Location()).Format("Mon 2 Jan 2006 15:04")
}

func (s *PickupService) buildListFilter(params ListPickupRequestsParams) PickupRepositoryFilter {
	principal := params.Principal
	filter := PickupRepositoryFilter{
		Statuses:     params.Statuses,
		ServiceDayID: params.ServiceDayID,
		SeriesID:     params.SeriesID,
	}

	switch {
	case principal.IsAdmin():
	case principal.IsDriver():
		driverID := principal.UserID
		filter.DriverID = &driverID
		filter.IncludeOpen = true
	default:
		userID := principal.UserID
		filter.UserID = &userID
	}

	if params.Period != ListPeriodNone {
		reference := params.PeriodReference
		if reference.IsZero() {
			reference = s.now()
		}
		start, end := computePeriodRange(params.Period, reference, s.engine.Location())
		filter.From = &start
		filter.Until = &end
	}
	return filter
}

func validatePickupRequestInput(input *PickupRequestInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Recurring && input.EndDate == nil {
		// Reported alone so nothing is looked up for an unbounded series.
		vErr.add("end_date", "end date is required for recurring requests")
		return vErr
	}

	input.ServiceDayID = strings.TrimSpace(input.ServiceDayID)
	input.AddressID = strings.TrimSpace(input.AddressID)
	input.Notes = strings.TrimSpace(input.Notes)

	if input.ServiceDayID == "" {
		vErr.add("service_day_id", "service day is required")
	}
	if input.AddressID == "" {
		vErr.add("address_id", "address is required")
	}
	if input.RequestDate.IsZero() {
		vErr.add("request_date", "request date is required")
	}
	if !input.Pickup && !input.DropOff {
		vErr.add("pickup", "pickup or drop off is required")
	}
	if input.GroupRide {
		if input.GroupSize < 1 || input.GroupSize > maxGroupSize {
			vErr.add("group_size", fmt.Sprintf("group size must be between 1 and %d", maxGroupSize))
		}
	} else {
		input.GroupSize = 1
	}
	if len(input.Notes) > maxNotesLength {
		vErr.add("notes", fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}
	if input.Recurring && !input.RequestDate.IsZero() && input.EndDate.Before(input.RequestDate) {
		vErr.add("end_date", "end date must not be before the request date")
	}
	return vErr
}

func canView(principal Principal, request PickupRequest) bool {
	switch {
	case principal.IsAdmin():
		return true
	case request.UserID == principal.UserID:
		return true
	case principal.IsDriver():
		if isAssignedDriver(principal, request) {
			return true
		}
		return request.Status == pickup.StatusPending && request.DriverID == nil
	default:
		return false
	}
}

func isAssignedDriver(principal Principal, request PickupRequest) bool {
	return request.DriverID != nil && *request.DriverID == principal.UserID
}

func mapTransitionError(err error) error {
	if errors.Is(err, pickup.ErrTerminalState) || errors.Is(err, pickup.ErrInvalidTransition) {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return err
}

func mapCutoffError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cutoff.ErrCutoffPassed) {
		return fmt.Errorf("%w: %w", ErrCutoffPassed, err)
	}
	return err
}

func computePeriodRange(period ListPeriod, reference time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	cfg := &now.Config{WeekStartDay: time.Monday, TimeLocation: loc}
	ref := cfg.With(reference.In(loc))
	switch period {
	case ListPeriodDay:
		start := ref.BeginningOfDay()
		return start, start.AddDate(0, 0, 1)
	case ListPeriodWeek:
		start := ref.BeginningOfWeek()
		return start, start.AddDate(0, 0, 7)
	case ListPeriodMonth:
		start := ref.BeginningOfMonth()
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}
