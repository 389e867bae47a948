package application

import (
	"context"
	"errors"
	"time"

	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/pickup"
)

// UserRepository captures the persistence operations needed for users.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, organizationID, id string) (User, error)
	ListUsers(ctx context.Context, organizationID string, filter UserRepositoryFilter) ([]User, error)
}

// UserRepositoryFilter narrows queries issued to the user repository.
type UserRepositoryFilter struct {
	Status *UserStatus
	Role   *Role
}

// AddressRepository captures the persistence operations needed for addresses.
type AddressRepository interface {
	CreateAddress(ctx context.Context, address Address) (Address, error)
	GetAddress(ctx context.Context, organizationID, id string) (Address, error)
	ListAddressesForUser(ctx context.Context, organizationID, userID string) ([]Address, error)
}

// ServiceDayRepository captures the persistence operations needed for service days.
type ServiceDayRepository interface {
	CreateServiceDay(ctx context.Context, day ServiceDay) (ServiceDay, error)
	UpdateServiceDay(ctx context.Context, day ServiceDay) (ServiceDay, error)
	GetServiceDay(ctx context.Context, organizationID, id string) (ServiceDay, error)
	ListServiceDays(ctx context.Context, organizationID string, includeInactive bool) ([]ServiceDay, error)
}

// PickupRepository captures the persistence operations needed for pickup requests.
type PickupRepository interface {
	GetRequest(ctx context.Context, organizationID, id string) (PickupRequest, error)
	ListRequests(ctx context.Context, organizationID string, filter PickupRepositoryFilter) ([]PickupRequest, error)
	ListEvents(ctx context.Context, organizationID, requestID string) ([]PickupEvent, error)
	WithinTransaction(ctx context.Context, organizationID string, fn func(tx PickupTx) error) error
}

// PickupRepositoryFilter narrows queries issued to the pickup repository.
type PickupRepositoryFilter struct {
	UserID       *string
	DriverID     *string
	IncludeOpen  bool
	Statuses     []pickup.Status
	ServiceDayID *string
	SeriesID     *string
	From         *time.Time
	Until        *time.Time
}

// PickupTx is the transactional collaborator for multi-step request writes.
// Every call is scoped to the organization the transaction was opened for.
type PickupTx interface {
	FindActiveRequest(ctx context.Context, userID, serviceDayID, serviceDate string) (*PickupRequest, error)
	ListActiveRequests(ctx context.Context, userID, serviceDayID, fromDate, untilDate string) ([]PickupRequest, error)
	GetRequest(ctx context.Context, id string) (PickupRequest, error)
	ListSeriesRequests(ctx context.Context, seriesID string) ([]PickupRequest, error)
	CreateSeries(ctx context.Context, series PickupSeries) error
	CreateRequest(ctx context.Context, request PickupRequest) error
	UpdateRequest(ctx context.Context, request PickupRequest) error
	AppendEvent(ctx context.Context, event PickupEvent) error
}

func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return newValidationError("record", "values violate a storage constraint")
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return newValidationError("record", "related records are missing")
	}
	return err
}

// mapPickupRepoError reports unique slot violations as duplicate requests.
func mapPickupRepoError(err error) error {
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrDuplicateRequest
	}
	return mapRepoError(err)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
