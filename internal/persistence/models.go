package persistence

import "time"

// User represents a church member account.
type User struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	Phone          string
	Role           string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Address represents a geocoded pickup location owned by a user.
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

// ServiceDay represents a recurring church service that members request rides to.
type ServiceDay struct {
	ID             string
	OrganizationID string
	Name           string
	Time           string
	Weekdays       []time.Weekday
	Frequency      string
	Ordinal        string
	StartDate      *time.Time
	EndDate        *time.Time
	CycleCount     *int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PickupSeries groups the requests created by one recurring submission.
type PickupSeries struct {
	ID             string
	OrganizationID string
	CreatedAt      time.Time
}

// PickupRequest represents a ride request for one service date.
type PickupRequest struct {
	ID             string
	OrganizationID string
	UserID         string
	ServiceDayID   string
	AddressID      string
	RequestDate    time.Time
	// ServiceDate is the YYYY-MM-DD calendar date the request occupies.
	ServiceDate string
	Status      string
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
	DeletedAt   *time.Time
}

// PickupEvent is an audit trail entry of a request.
type PickupEvent struct {
	ID             string
	OrganizationID string
	RequestID      string
	Kind           string
	ActorID        string
	Note           string
	CreatedAt      time.Time
}
