package main

import (
	"context"
	"time"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/pickup"
	"github.com/example/church-pickups/internal/recurrence"
)

type userRepositoryAdapter struct {
	repo persistence.UserRepository
}

func newUserRepositoryAdapter(repo persistence.UserRepository) *userRepositoryAdapter {
	return &userRepositoryAdapter{repo: repo}
}

func (a *userRepositoryAdapter) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.OrganizationID, user.ID)
}

func (a *userRepositoryAdapter) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, err
	}
	return a.GetUser(ctx, user.OrganizationID, user.ID)
}

func (a *userRepositoryAdapter) GetUser(ctx context.Context, organizationID, id string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, organizationID, id)
	if err != nil {
		return application.User{}, err
	}
	return toApplicationUser(stored), nil
}

func (a *userRepositoryAdapter) ListUsers(ctx context.Context, organizationID string, filter application.UserRepositoryFilter) ([]application.User, error) {
	var persisted persistence.UserFilter
	if filter.Status != nil {
		status := string(*filter.Status)
		persisted.Status = &status
	}
	if filter.Role != nil {
		role := string(*filter.Role)
		persisted.Role = &role
	}

	models, err := a.repo.ListUsers(ctx, organizationID, persisted)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	users := make([]application.User, 0, len(models))
	for _, model := range models {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

type addressRepositoryAdapter struct {
	repo persistence.AddressRepository
}

func newAddressRepositoryAdapter(repo persistence.AddressRepository) *addressRepositoryAdapter {
	return &addressRepositoryAdapter{repo: repo}
}

func (a *addressRepositoryAdapter) CreateAddress(ctx context.Context, address application.Address) (application.Address, error) {
	if err := a.repo.CreateAddress(ctx, persistence.Address(address)); err != nil {
		return application.Address{}, err
	}
	return a.GetAddress(ctx, address.OrganizationID, address.ID)
}

func (a *addressRepositoryAdapter) GetAddress(ctx context.Context, organizationID, id string) (application.Address, error) {
	stored, err := a.repo.GetAddress(ctx, organizationID, id)
	if err != nil {
		return application.Address{}, err
	}
	return application.Address(stored), nil
}

func (a *addressRepositoryAdapter) ListAddressesForUser(ctx context.Context, organizationID, userID string) ([]application.Address, error) {
	models, err := a.repo.ListAddressesForUser(ctx, organizationID, userID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	addresses := make([]application.Address, 0, len(models))
	for _, model := range models {
		addresses = append(addresses, application.Address(model))
	}
	return addresses, nil
}

type serviceDayRepositoryAdapter struct {
	repo persistence.ServiceDayRepository
}

func newServiceDayRepositoryAdapter(repo persistence.ServiceDayRepository) *serviceDayRepositoryAdapter {
	return &serviceDayRepositoryAdapter{repo: repo}
}

func (a *serviceDayRepositoryAdapter) CreateServiceDay(ctx context.Context, day application.ServiceDay) (application.ServiceDay, error) {
	if err := a.repo.CreateServiceDay(ctx, toPersistenceServiceDay(day)); err != nil {
		return application.ServiceDay{}, err
	}
	return a.GetServiceDay(ctx, day.OrganizationID, day.ID)
}

func (a *serviceDayRepositoryAdapter) UpdateServiceDay(ctx context.Context, day application.ServiceDay) (application.ServiceDay, error) {
	if err := a.repo.UpdateServiceDay(ctx, toPersistenceServiceDay(day)); err != nil {
		return application.ServiceDay{}, err
	}
	return a.GetServiceDay(ctx, day.OrganizationID, day.ID)
}

func (a *serviceDayRepositoryAdapter) GetServiceDay(ctx context.Context, organizationID, id string) (application.ServiceDay, error) {
	stored, err := a.repo.GetServiceDay(ctx, organizationID, id)
	if err != nil {
		return application.ServiceDay{}, err
	}
	return toApplicationServiceDay(stored), nil
}

func (a *serviceDayRepositoryAdapter) ListServiceDays(ctx context.Context, organizationID string, includeInactive bool) ([]application.ServiceDay, error) {
	models, err := a.repo.ListServiceDays(ctx, organizationID, includeInactive)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	days := make([]application.ServiceDay, 0, len(models))
	for _, model := range models {
		days = append(days, toApplicationServiceDay(model))
	}
	return days, nil
}

type pickupRepositoryAdapter struct {
	repo persistence.PickupRepository
}

func newPickupRepositoryAdapter(repo persistence.PickupRepository) *pickupRepositoryAdapter {
	return &pickupRepositoryAdapter{repo: repo}
}

func (a *pickupRepositoryAdapter) GetRequest(ctx context.Context, organizationID, id string) (application.PickupRequest, error) {
	stored, err := a.repo.GetRequest(ctx, organizationID, id)
	if err != nil {
		return application.PickupRequest{}, err
	}
	return toApplicationRequest(stored), nil
}

func (a *pickupRepositoryAdapter) ListRequests(ctx context.Context, organizationID string, filter application.PickupRepositoryFilter) ([]application.PickupRequest, error) {
	persisted := persistence.PickupFilter{
		UserID:       cloneString(filter.UserID),
		DriverID:     cloneString(filter.DriverID),
		IncludeOpen:  filter.IncludeOpen,
		ServiceDayID: cloneString(filter.ServiceDayID),
		SeriesID:     cloneString(filter.SeriesID),
		From:         cloneTime(filter.From),
		Until:        cloneTime(filter.Until),
	}
	for _, status := range filter.Statuses {
		persisted.Statuses = append(persisted.Statuses, string(status))
	}

	models, err := a.repo.ListRequests(ctx, organizationID, persisted)
	if err != nil {
		return nil, err
	}
	return toApplicationRequests(models), nil
}

func (a *pickupRepositoryAdapter) ListEvents(ctx context.Context, organizationID, requestID string) ([]application.PickupEvent, error) {
	models, err := a.repo.ListEvents(ctx, organizationID, requestID)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	events := make([]application.PickupEvent, 0, len(models))
	for _, model := range models {
		events = append(events, application.PickupEvent{
			ID:             model.ID,
			OrganizationID: model.OrganizationID,
			RequestID:      model.RequestID,
			Kind:           application.EventKind(model.Kind),
			ActorID:        model.ActorID,
			Note:           model.Note,
			CreatedAt:      model.CreatedAt,
		})
	}
	return events, nil
}

func (a *pickupRepositoryAdapter) WithinTransaction(ctx context.Context, organizationID string, fn func(tx application.PickupTx) error) error {
	return a.repo.WithinTransaction(ctx, organizationID, func(tx persistence.PickupTx) error {
		return fn(pickupTxAdapter{tx: tx})
	})
}

type pickupTxAdapter struct {
	tx persistence.PickupTx
}

func (a pickupTxAdapter) FindActiveRequest(ctx context.Context, userID, serviceDayID, serviceDate string) (*application.PickupRequest, error) {
	stored, err := a.tx.FindActiveRequest(ctx, userID, serviceDayID, serviceDate)
	if err != nil || stored == nil {
		return nil, err
	}
	request := toApplicationRequest(*stored)
	return &request, nil
}

func (a pickupTxAdapter) ListActiveRequests(ctx context.Context, userID, serviceDayID, fromDate, untilDate string) ([]application.PickupRequest, error) {
	models, err := a.tx.ListActiveRequests(ctx, userID, serviceDayID, fromDate, untilDate)
	if err != nil {
		return nil, err
	}
	return toApplicationRequests(models), nil
}

func (a pickupTxAdapter) GetRequest(ctx context.Context, id string) (application.PickupRequest, error) {
	stored, err := a.tx.GetRequest(ctx, id)
	if err != nil {
		return application.PickupRequest{}, err
	}
	return toApplicationRequest(stored), nil
}

func (a pickupTxAdapter) ListSeriesRequests(ctx context.Context, seriesID string) ([]application.PickupRequest, error) {
	models, err := a.tx.ListSeriesRequests(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	return toApplicationRequests(models), nil
}

func (a pickupTxAdapter) CreateSeries(ctx context.Context, series application.PickupSeries) error {
	return a.tx.CreateSeries(ctx, persistence.PickupSeries(series))
}

func (a pickupTxAdapter) CreateRequest(ctx context.Context, request application.PickupRequest) error {
	return a.tx.CreateRequest(ctx, toPersistenceRequest(request))
}

func (a pickupTxAdapter) UpdateRequest(ctx context.Context, request application.PickupRequest) error {
	return a.tx.UpdateRequest(ctx, toPersistenceRequest(request))
}

func (a pickupTxAdapter) AppendEvent(ctx context.Context, event application.PickupEvent) error {
	return a.tx.AppendEvent(ctx, persistence.PickupEvent{
		ID:             event.ID,
		OrganizationID: event.OrganizationID,
		RequestID:      event.RequestID,
		Kind:           string(event.Kind),
		ActorID:        event.ActorID,
		Note:           event.Note,
		CreatedAt:      event.CreatedAt,
	})
}

func toApplicationUser(model persistence.User) application.User {
	return application.User{
		ID:             model.ID,
		OrganizationID: model.OrganizationID,
		Name:           model.Name,
		Email:          model.Email,
		Phone:          model.Phone,
		Role:           application.Role(model.Role),
		Status:         application.UserStatus(model.Status),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toPersistenceUser(user application.User) persistence.User {
	return persistence.User{
		ID:             user.ID,
		OrganizationID: user.OrganizationID,
		Name:           user.Name,
		Email:          user.Email,
		Phone:          user.Phone,
		Role:           string(user.Role),
		Status:         string(user.Status),
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}

func toApplicationServiceDay(model persistence.ServiceDay) application.ServiceDay {
	return application.ServiceDay{
		ID:             model.ID,
		OrganizationID: model.OrganizationID,
		Name:           model.Name,
		Time:           model.Time,
		Weekdays:       append([]time.Weekday(nil), model.Weekdays...),
		Frequency:      recurrence.Frequency(model.Frequency),
		Ordinal:        recurrence.Ordinal(model.Ordinal),
		StartDate:      cloneTime(model.StartDate),
		EndDate:        cloneTime(model.EndDate),
		CycleCount:     cloneInt(model.CycleCount),
		Active:         model.Active,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toPersistenceServiceDay(day application.ServiceDay) persistence.ServiceDay {
	return persistence.ServiceDay{
		ID:             day.ID,
		OrganizationID: day.OrganizationID,
		Name:           day.Name,
		Time:           day.Time,
		Weekdays:       append([]time.Weekday(nil), day.Weekdays...),
		Frequency:      string(day.Frequency),
		Ordinal:        string(day.Ordinal),
		StartDate:      cloneTime(day.StartDate),
		EndDate:        cloneTime(day.EndDate),
		CycleCount:     cloneInt(day.CycleCount),
		Active:         day.Active,
		CreatedAt:      day.CreatedAt,
		UpdatedAt:      day.UpdatedAt,
	}
}

func toApplicationRequest(model persistence.PickupRequest) application.PickupRequest {
	return application.PickupRequest{
		ID:             model.ID,
		OrganizationID: model.OrganizationID,
		UserID:         model.UserID,
		ServiceDayID:   model.ServiceDayID,
		AddressID:      model.AddressID,
		RequestDate:    model.RequestDate,
		ServiceDate:    model.ServiceDate,
		Status:         pickup.Status(model.Status),
		DriverID:       cloneString(model.DriverID),
		DistanceKm:     cloneFloat(model.DistanceKm),
		SeriesID:       cloneString(model.SeriesID),
		Pickup:         model.Pickup,
		DropOff:        model.DropOff,
		GroupRide:      model.GroupRide,
		GroupSize:      model.GroupSize,
		Notes:          model.Notes,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toApplicationRequests(models []persistence.PickupRequest) []application.PickupRequest {
	if len(models) == 0 {
		return nil
	}
	requests := make([]application.PickupRequest, 0, len(models))
	for _, model := range models {
		requests = append(requests, toApplicationRequest(model))
	}
	return requests
}

func toPersistenceRequest(request application.PickupRequest) persistence.PickupRequest {
	return persistence.PickupRequest{
		ID:             request.ID,
		OrganizationID: request.OrganizationID,
		UserID:         request.UserID,
		ServiceDayID:   request.ServiceDayID,
		AddressID:      request.AddressID,
		RequestDate:    request.RequestDate,
		ServiceDate:    request.ServiceDate,
		Status:         string(request.Status),
		DriverID:       cloneString(request.DriverID),
		DistanceKm:     cloneFloat(request.DistanceKm),
		SeriesID:       cloneString(request.SeriesID),
		Pickup:         request.Pickup,
		DropOff:        request.DropOff,
		GroupRide:      request.GroupRide,
		GroupSize:      request.GroupSize,
		Notes:          request.Notes,
		CreatedAt:      request.CreatedAt,
		UpdatedAt:      request.UpdatedAt,
	}
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
