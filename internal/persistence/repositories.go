package persistence

import (
	"context"
	"time"
)

// Every call takes the organization id explicitly; rows of other tenants are never visible.

// UserFilter narrows user listings.
type UserFilter struct {
	Status *string
	Role   *string
}

// UserRepository exposes CRUD operations for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, organizationID, id string) (User, error)
	ListUsers(ctx context.Context, organizationID string, filter UserFilter) ([]User, error)
}

// AddressRepository stores geocoded addresses.
type AddressRepository interface {
	CreateAddress(ctx context.Context, address Address) error
	GetAddress(ctx context.Context, organizationID, id string) (Address, error)
	ListAddressesForUser(ctx context.Context, organizationID, userID string) ([]Address, error)
}

// ServiceDayRepository stores service day definitions.
type ServiceDayRepository interface {
	CreateServiceDay(ctx context.Context, day ServiceDay) error
	UpdateServiceDay(ctx context.Context, day ServiceDay) error
	GetServiceDay(ctx context.Context, organizationID, id string) (ServiceDay, error)
	ListServiceDays(ctx context.Context, organizationID string, includeInactive bool) ([]ServiceDay, error)
}

// PickupFilter narrows pickup request listings.
type PickupFilter struct {
	// UserID restricts results to one requester.
	UserID *string
	// DriverID restricts results to one driver's assignments.
	DriverID *string
	// IncludeOpen adds unassigned pending requests to a DriverID restriction.
	IncludeOpen  bool
	Statuses     []string
	ServiceDayID *string
	SeriesID     *string
	From         *time.Time
	Until        *time.Time
}

// PickupRepository stores pickup requests, series and events.
type PickupRepository interface {
	GetRequest(ctx context.Context, organizationID, id string) (PickupRequest, error)
	ListRequests(ctx context.Context, organizationID string, filter PickupFilter) ([]PickupRequest, error)
	ListEvents(ctx context.Context, organizationID, requestID string) ([]PickupEvent, error)
	// WithinTransaction runs fn in one write transaction scoped to organizationID.
	WithinTransaction(ctx context.Context, organizationID string, fn func(tx PickupTx) error) error
}

// PickupTx is the transactional view used for multi-step writes.
type PickupTx interface {
	// FindActiveRequest returns the live request holding the slot on serviceDate, or nil.
	FindActiveRequest(ctx context.Context, userID, serviceDayID, serviceDate string) (*PickupRequest, error)
	// ListActiveRequests returns live requests with service dates in [fromDate, untilDate].
	ListActiveRequests(ctx context.Context, userID, serviceDayID, fromDate, untilDate string) ([]PickupRequest, error)
	GetRequest(ctx context.Context, id string) (PickupRequest, error)
	ListSeriesRequests(ctx context.Context, seriesID string) ([]PickupRequest, error)
	CreateSeries(ctx context.Context, series PickupSeries) error
	CreateRequest(ctx context.Context, request PickupRequest) error
	UpdateRequest(ctx context.Context, request PickupRequest) error
	AppendEvent(ctx context.Context, event PickupEvent) error
}
