package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/church-pickups/internal/application"
	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/pickup"
	"github.com/example/church-pickups/internal/recurrence"
)

// DefaultOrganizationID is the tenant fixtures belong to unless overridden.
const DefaultOrganizationID = "org-test"

var (
	userCounter       uint64
	addressCounter    uint64
	serviceDayCounter uint64
	requestCounter    uint64
)

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic member record that can be materialised
// for application or persistence tests.
type UserFixture struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Phone          string
	Role           application.Role
	Status         application.UserStatus
	CreatedAt      time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns an active member with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	fixture := UserFixture{
		ID:             id,
		OrganizationID: DefaultOrganizationID,
		Name:           fmt.Sprintf("Member %03d", idx),
		Email:          fmt.Sprintf("%s@example.com", id),
		Role:           application.RoleUser,
		Status:         application.UserStatusActive,
		CreatedAt:      ReferenceTime().Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) {
		f.ID = id
		f.Email = fmt.Sprintf("%s@example.com", id)
	}
}

// WithUserOrganization moves the user to another tenant.
func WithUserOrganization(organizationID string) UserOption {
	return func(f *UserFixture) {
		f.OrganizationID = organizationID
	}
}

// WithUserRole overrides the role.
func WithUserRole(role application.Role) UserOption {
	return func(f *UserFixture) {
		f.Role = role
	}
}

// WithUserStatus overrides the account status.
func WithUserStatus(status application.UserStatus) UserOption {
	return func(f *UserFixture) {
		f.Status = status
	}
}

// Application returns the fixture as an application.User value.
func (f UserFixture) Application() application.User {
	return application.User{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Email:          f.Email,
		Phone:          f.Phone,
		Role:           f.Role,
		Status:         f.Status,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// Principal returns the caller identity of the fixture.
func (f UserFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, OrganizationID: f.OrganizationID, Role: f.Role}
}

// Persistence returns the fixture as a persistence.User value.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Email:          f.Email,
		Phone:          f.Phone,
		Role:           string(f.Role),
		Status:         string(f.Status),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// ---------------------------- Address fixtures ----------------------------

// AddressFixture is a geocoded pickup address of a user.
type AddressFixture struct {
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

// NewAddressFixture returns an address owned by user. Coordinates step east per
// fixture so distances between fixtures are non-zero.
func NewAddressFixture(user UserFixture) AddressFixture {
	idx := atomic.AddUint64(&addressCounter, 1)
	return AddressFixture{
		ID:             fmt.Sprintf("addr-%03d", idx),
		OrganizationID: user.OrganizationID,
		UserID:         user.ID,
		Street:         fmt.Sprintf("%d Chapel Road", idx),
		City:           "Springfield",
		PostalCode:     "SP1 1AA",
		Latitude:       51.5,
		Longitude:      -0.12 + float64(idx%100)*0.01,
		CreatedAt:      user.CreatedAt,
	}
}

// Application returns the fixture as an application.Address value.
func (f AddressFixture) Application() application.Address {
	return application.Address(f.Persistence())
}

// Persistence returns the fixture as a persistence.Address value.
func (f AddressFixture) Persistence() persistence.Address {
	return persistence.Address{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		UserID:         f.UserID,
		Street:         f.Street,
		City:           f.City,
		PostalCode:     f.PostalCode,
		Latitude:       f.Latitude,
		Longitude:      f.Longitude,
		CreatedAt:      f.CreatedAt,
	}
}

// -------------------------- Service day fixtures --------------------------

// ServiceDayFixture represents a service members request rides to.
type ServiceDayFixture struct {
	ID             string
	OrganizationID string
	Name           string
	Time           string
	Weekdays       []time.Weekday
	Frequency      recurrence.Frequency
	Ordinal        recurrence.Ordinal
	StartDate      *time.Time
	EndDate        *time.Time
	CycleCount     *int
	Active         bool
	CreatedAt      time.Time
}

// ServiceDayOption configures the generated service day fixture.
type ServiceDayOption func(*ServiceDayFixture)

// NewServiceDayFixture returns an active weekly Sunday 10:00 service.
func NewServiceDayFixture(opts ...ServiceDayOption) ServiceDayFixture {
	idx := atomic.AddUint64(&serviceDayCounter, 1)
	fixture := ServiceDayFixture{
		ID:             fmt.Sprintf("day-%03d", idx),
		OrganizationID: DefaultOrganizationID,
		Name:           fmt.Sprintf("Sunday Service %03d", idx),
		Time:           "10:00",
		Weekdays:       []time.Weekday{time.Sunday},
		Frequency:      recurrence.FrequencyWeekly,
		Ordinal:        recurrence.OrdinalNext,
		Active:         true,
		CreatedAt:      ReferenceTime().AddDate(0, -1, 0),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithServiceDayID overrides the generated ID.
func WithServiceDayID(id string) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.ID = id
	}
}

// WithServiceDayOrganization moves the service day to another tenant.
func WithServiceDayOrganization(organizationID string) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.OrganizationID = organizationID
	}
}

// WithServiceDaySchedule overrides time and weekdays.
func WithServiceDaySchedule(serviceTime string, weekdays ...time.Weekday) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.Time = serviceTime
		f.Weekdays = append([]time.Weekday(nil), weekdays...)
	}
}

// WithServiceDayFrequency overrides frequency and ordinal.
func WithServiceDayFrequency(frequency recurrence.Frequency, ordinal recurrence.Ordinal) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.Frequency = frequency
		f.Ordinal = ordinal
	}
}

// WithServiceDayCycleCount limits the number of occurrences.
func WithServiceDayCycleCount(count int) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.CycleCount = &count
	}
}

// WithServiceDayRange bounds the service day by calendar dates.
func WithServiceDayRange(start, end *time.Time) ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.StartDate = start
		f.EndDate = end
	}
}

// Inactive marks the service day as deactivated.
func Inactive() ServiceDayOption {
	return func(f *ServiceDayFixture) {
		f.Active = false
	}
}

// Application returns the fixture as an application.ServiceDay value.
func (f ServiceDayFixture) Application() application.ServiceDay {
	return application.ServiceDay{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Time:           f.Time,
		Weekdays:       append([]time.Weekday(nil), f.Weekdays...),
		Frequency:      f.Frequency,
		Ordinal:        f.Ordinal,
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		CycleCount:     f.CycleCount,
		Active:         f.Active,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// Persistence returns the fixture as a persistence.ServiceDay value.
func (f ServiceDayFixture) Persistence() persistence.ServiceDay {
	return persistence.ServiceDay{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		Name:           f.Name,
		Time:           f.Time,
		Weekdays:       append([]time.Weekday(nil), f.Weekdays...),
		Frequency:      string(f.Frequency),
		Ordinal:        string(f.Ordinal),
		StartDate:      f.StartDate,
		EndDate:        f.EndDate,
		CycleCount:     f.CycleCount,
		Active:         f.Active,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}

// ------------------------ Pickup request fixtures ------------------------

// PickupRequestFixture is a stored request for one service date.
type PickupRequestFixture struct {
	ID             string
	OrganizationID string
	UserID         string
	ServiceDayID   string
	AddressID      string
	RequestDate    time.Time
	ServiceDate    string
	Status         pickup.Status
	DriverID       *string
	SeriesID       *string
	CreatedAt      time.Time
}

// NewPickupRequestFixture returns a pending request of user for the service start at date.
func NewPickupRequestFixture(user UserFixture, address AddressFixture, day ServiceDayFixture, date time.Time) PickupRequestFixture {
	idx := atomic.AddUint64(&requestCounter, 1)
	return PickupRequestFixture{
		ID:             fmt.Sprintf("req-%03d", idx),
		OrganizationID: user.OrganizationID,
		UserID:         user.ID,
		ServiceDayID:   day.ID,
		AddressID:      address.ID,
		RequestDate:    date.UTC(),
		ServiceDate:    date.Format(time.DateOnly),
		Status:         pickup.StatusPending,
		CreatedAt:      ReferenceTime(),
	}
}

// Persistence returns the fixture as a persistence.PickupRequest value.
func (f PickupRequestFixture) Persistence() persistence.PickupRequest {
	return persistence.PickupRequest{
		ID:             f.ID,
		OrganizationID: f.OrganizationID,
		UserID:         f.UserID,
		ServiceDayID:   f.ServiceDayID,
		AddressID:      f.AddressID,
		RequestDate:    f.RequestDate,
		ServiceDate:    f.ServiceDate,
		Status:         string(f.Status),
		DriverID:       f.DriverID,
		SeriesID:       f.SeriesID,
		Pickup:         true,
		GroupSize:      1,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.CreatedAt,
	}
}
