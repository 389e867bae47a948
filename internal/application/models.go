package application

import (
	"time"

	"github.com/example/church-pickups/internal/geo"
	"github.com/example/church-pickups/internal/pickup"
	"github.com/example/church-pickups/internal/recurrence"
)

// Role is the organization level role of a user.
type Role string

const (
	RoleUser   Role = "USER"
	RoleDriver Role = "DRIVER"
	RoleAdmin  Role = "ADMIN"
)

// UserStatus tracks the approval state of an account.
type UserStatus string

const (
	UserStatusPendingApproval UserStatus = "PENDING_APPROVAL"
	UserStatusActive          UserStatus = "ACTIVE"
	UserStatusDisabled        UserStatus = "DISABLED"
)

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID         string
	OrganizationID string
	Role           Role
}

// IsAdmin reports whether the principal administers its organization.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// IsDriver reports whether the principal may accept rides.
func (p Principal) IsDriver() bool {
	return p.Role == RoleDriver
}

// User represents a church member account.
type User struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Phone          string
	Role           Role
	Status         UserStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Address represents a geocoded pickup location.
type Address struct {
	ID             string
	OrganizationID string
	UserID         string
	Street         string
	City           string
	PostalCode     string
	Latitude       float64
	Longitude      float64
	CreatedAt      time.Time
}

// Point returns the address coordinate.
func (a Address) Point() geo.Point {
	return geo.Point{Latitude: a.Latitude, Longitude: a.Longitude}
}

// ServiceDay is a church service members can request rides to.
type ServiceDay struct {
	ID             string
	OrganizationID string
	Name           string
	// Time is the wall clock start in "HH:MM".
	Time       string
	Weekdays   []time.Weekday
	Frequency  recurrence.Frequency
	Ordinal    recurrence.Ordinal
	StartDate  *time.Time
	EndDate    *time.Time
	CycleCount *int
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Rule returns the recurrence definition of the service day.
func (d ServiceDay) Rule() recurrence.Rule {
	return recurrence.Rule{
		Weekdays:   d.Weekdays,
		Frequency:  d.Frequency,
		Ordinal:    d.Ordinal,
		StartsOn:   d.StartDate,
		EndsOn:     d.EndDate,
		CycleCount: d.CycleCount,
	}
}

// ServiceDayInput captures caller provided service day fields.
type ServiceDayInput struct {
	Name       string
	Time       string
	Weekdays   []time.Weekday
	Frequency  string
	Ordinal    string
	StartDate  *time.Time
	EndDate    *time.Time
	CycleCount *int
}

// CreateServiceDayParams wraps the data required to create a service day.
type CreateServiceDayParams struct {
	Principal Principal
	Input     ServiceDayInput
}

// UpdateServiceDayParams wraps the data required to update a service day.
type UpdateServiceDayParams struct {
	Principal    Principal
	ServiceDayID string
	Input        ServiceDayInput
}

// PreviewOccurrencesParams requests the upcoming dates of a service day.
type PreviewOccurrencesParams struct {
	Principal    Principal
	ServiceDayID string
	From         time.Time
	Count        int
}

// PickupRequest is a ride request for one service date.
type PickupRequest struct {
	ID             string
	OrganizationID string
	UserID         string
	ServiceDayID   string
	AddressID      string
	// RequestDate is the service start in UTC.
	RequestDate time.Time
	// ServiceDate is the YYYY-MM-DD calendar date of the service in the
	// organization's timezone. It keys the one-request-per-slot rule.
	ServiceDate string
	Status      pickup.Status
	DriverID    *string
	DistanceKm  *float64
	SeriesID    *string
	Pickup      bool
	DropOff     bool
	GroupRide   bool
	GroupSize   int
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PickupSeries groups the requests of one recurring submission.
type PickupSeries struct {
	ID             string
	OrganizationID string
	CreatedAt      time.Time
}

// EventKind labels an audit trail entry.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventAccepted  EventKind = "accepted"
	EventReleased  EventKind = "released"
	EventCancelled EventKind = "cancelled"
	EventCompleted EventKind = "completed"
)

// PickupEvent is an audit trail entry of a request.
type PickupEvent struct {
	ID             string
	OrganizationID string
	RequestID      string
	Kind           EventKind
	ActorID        string
	Note           string
	CreatedAt      time.Time
}

// PickupRequestInput captures caller provided request fields.
type PickupRequestInput struct {
	UserID       string
	ServiceDayID string
	AddressID    string
	// RequestDate selects the service date. Only its calendar date is used.
	RequestDate time.Time
	Pickup      bool
	DropOff     bool
	GroupRide   bool
	GroupSize   int
	Notes       string
	// Recurring repeats the request on every following service date up to EndDate.
	Recurring bool
	EndDate   *time.Time
}

// CreatePickupRequestParams wraps the data required to create requests.
type CreatePickupRequestParams struct {
	Principal Principal
	Input     PickupRequestInput
}

// CreatePickupRequestResult lists the persisted requests in date order.
type CreatePickupRequestResult struct {
	SeriesID *string
	Requests []PickupRequest
}

// TransitionParams identifies the request a status change applies to.
type TransitionParams struct {
	Principal Principal
	RequestID string
	// DriverID lets an administrator assign a driver on accept. Drivers always accept for themselves.
	DriverID string
	Note     string
}

// CancelSeriesParams identifies a series to cancel.
type CancelSeriesParams struct {
	Principal Principal
	SeriesID  string
}

// CancelSeriesResult reports how many requests changed.
type CancelSeriesResult struct {
	Cancelled int
	// Skipped counts terminal requests and accepted ones past their cancel cutoff.
	Skipped int
}

// ListPeriod identifies the range preset requested for listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Monday-start week containing the reference time.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference time.
	ListPeriodMonth ListPeriod = "month"
)

// ListPickupRequestsParams narrows a request listing.
type ListPickupRequestsParams struct {
	Principal       Principal
	Statuses        []pickup.Status
	ServiceDayID    *string
	SeriesID        *string
	Period          ListPeriod
	PeriodReference time.Time
}

// SignupParams captures a self service registration.
type SignupParams struct {
	OrganizationID string
	Name           string
	Email          string
	Phone          string
	// Role may be USER or DRIVER. Administrators are never self registered.
	Role Role
}

// AddAddressParams captures a new address for a user.
type AddAddressParams struct {
	Principal  Principal
	UserID     string
	Street     string
	City       string
	PostalCode string
}

// ListUsersParams narrows a user listing.
type ListUsersParams struct {
	Principal Principal
	Status    *UserStatus
	Role      *Role
}

// UpdatePickupRequestParams changes the ride details of a pending request. Nil fields are kept.
type UpdatePickupRequestParams struct {
	Principal Principal
	RequestID string
	AddressID *string
	Pickup    *bool
	DropOff   *bool
	GroupRide *bool
	GroupSize *int
	Notes     *string
}
