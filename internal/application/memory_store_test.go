package application

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/example/church-pickups/internal/geo"
	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/pickup"
)

// memoryStore is an in-memory implementation of the application repositories.
type memoryStore struct {
	mu        sync.Mutex
	users     map[string]User
	addresses map[string]Address
	days      map[string]ServiceDay
	requests  map[string]PickupRequest
	series    map[string]PickupSeries
	events    []PickupEvent
	calls     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:     make(map[string]User),
		addresses: make(map[string]Address),
		days:      make(map[string]ServiceDay),
		requests:  make(map[string]PickupRequest),
		series:    make(map[string]PickupSeries),
	}
}

func (m *memoryStore) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *memoryStore) CreateUser(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, existing := range m.users {
		if existing.OrganizationID == user.OrganizationID && existing.Email == user.Email {
			return User{}, persistence.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) UpdateUser(ctx context.Context, user User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if existing, ok := m.users[user.ID]; !ok || existing.OrganizationID != user.OrganizationID {
		return User{}, persistence.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) GetUser(ctx context.Context, organizationID, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	user, ok := m.users[id]
	if !ok || user.OrganizationID != organizationID {
		return User{}, persistence.ErrNotFound
	}
	return user, nil
}

func (m *memoryStore) ListUsers(ctx context.Context, organizationID string, filter UserRepositoryFilter) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []User
	for _, user := range m.users {
		if user.OrganizationID != organizationID {
			continue
		}
		if filter.Status != nil && user.Status != *filter.Status {
			continue
		}
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		out = append(out, user)
	}
	return out, nil
}

func (m *memoryStore) CreateAddress(ctx context.Context, address Address) (Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.addresses[address.ID] = address
	return address, nil
}

func (m *memoryStore) GetAddress(ctx context.Context, organizationID, id string) (Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	address, ok := m.addresses[id]
	if !ok || address.OrganizationID != organizationID {
		return Address{}, persistence.ErrNotFound
	}
	return address, nil
}

func (m *memoryStore) ListAddressesForUser(ctx context.Context, organizationID, userID string) ([]Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []Address
	for _, address := range m.addresses {
		if address.OrganizationID == organizationID && address.UserID == userID {
			out = append(out, address)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryStore) CreateServiceDay(ctx context.Context, day ServiceDay) (ServiceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.days[day.ID] = day
	return day, nil
}

func (m *memoryStore) UpdateServiceDay(ctx context.Context, day ServiceDay) (ServiceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if _, ok := m.days[day.ID]; !ok {
		return ServiceDay{}, persistence.ErrNotFound
	}
	m.days[day.ID] = day
	return day, nil
}

func (m *memoryStore) GetServiceDay(ctx context.Context, organizationID, id string) (ServiceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	day, ok := m.days[id]
	if !ok || day.OrganizationID != organizationID {
		return ServiceDay{}, persistence.ErrNotFound
	}
	return day, nil
}

func (m *memoryStore) ListServiceDays(ctx context.Context, organizationID string, includeInactive bool) ([]ServiceDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []ServiceDay
	for _, day := range m.days {
		if day.OrganizationID == organizationID && (includeInactive || day.Active) {
			out = append(out, day)
		}
	}
	return out, nil
}

func (m *memoryStore) GetRequest(ctx context.Context, organizationID, id string) (PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	request, ok := m.requests[id]
	if !ok || request.OrganizationID != organizationID {
		return PickupRequest{}, persistence.ErrNotFound
	}
	return request, nil
}

func (m *memoryStore) ListRequests(ctx context.Context, organizationID string, filter PickupRepositoryFilter) ([]PickupRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []PickupRequest
	for _, request := range m.requests {
		if request.OrganizationID != organizationID || !matchesFilter(request, filter) {
			continue
		}
		out = append(out, request)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestDate.Equal(out[j].RequestDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestDate.Before(out[j].RequestDate)
	})
	return out, nil
}

func matchesFilter(request PickupRequest, filter PickupRepositoryFilter) bool {
	if filter.UserID != nil && request.UserID != *filter.UserID {
		return false
	}
	if filter.DriverID != nil {
		assigned := request.DriverID != nil && *request.DriverID == *filter.DriverID
		open := filter.IncludeOpen && request.Status == pickup.StatusPending && request.DriverID == nil
		if !assigned && !open {
			return false
		}
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if status == request.Status {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	if filter.ServiceDayID != nil && request.ServiceDayID != *filter.ServiceDayID {
		return false
	}
	if filter.SeriesID != nil && (request.SeriesID == nil || *request.SeriesID != *filter.SeriesID) {
		return false
	}
	if filter.From != nil && request.RequestDate.Before(*filter.From) {
		return false
	}
	if filter.Until != nil && !request.RequestDate.Before(*filter.Until) {
		return false
	}
	return true
}

func (m *memoryStore) ListEvents(ctx context.Context, organizationID, requestID string) ([]PickupEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	var out []PickupEvent
	for _, event := range m.events {
		if event.OrganizationID == organizationID && event.RequestID == requestID {
			out = append(out, event)
		}
	}
	return out, nil
}

// WithinTransaction runs fn against a scratch copy that is committed only on success.
func (m *memoryStore) WithinTransaction(ctx context.Context, organizationID string, fn func(tx PickupTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	tx := &memoryTx{
		organizationID: organizationID,
		requests:       make(map[string]PickupRequest, len(m.requests)),
		series:         make(map[string]PickupSeries, len(m.series)),
		events:         append([]PickupEvent(nil), m.events...),
	}
	for id, request := range m.requests {
		tx.requests[id] = request
	}
	for id, series := range m.series {
		tx.series[id] = series
	}

	if err := fn(tx); err != nil {
		return err
	}

	m.requests = tx.requests
	m.series = tx.series
	m.events = tx.events
	return nil
}

func (m *memoryStore) eventsFor(requestID string) []PickupEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PickupEvent
	for _, event := range m.events {
		if event.RequestID == requestID {
			out = append(out, event)
		}
	}
	return out
}

func (m *memoryStore) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type memoryTx struct {
	organizationID string
	requests       map[string]PickupRequest
	series         map[string]PickupSeries
	events         []PickupEvent
}

func (t *memoryTx) FindActiveRequest(ctx context.Context, userID, serviceDayID, serviceDate string) (*PickupRequest, error) {
	for _, request := range t.requests {
		if t.sameSlot(request, userID, serviceDayID) && request.ServiceDate == serviceDate {
			found := request
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memoryTx) ListActiveRequests(ctx context.Context, userID, serviceDayID, fromDate, untilDate string) ([]PickupRequest, error) {
	var out []PickupRequest
	for _, request := range t.requests {
		if t.sameSlot(request, userID, serviceDayID) && request.ServiceDate >= fromDate && request.ServiceDate <= untilDate {
			out = append(out, request)
		}
	}
	return out, nil
}

func (t *memoryTx) sameSlot(request PickupRequest, userID, serviceDayID string) bool {
	return request.OrganizationID == t.organizationID &&
		request.UserID == userID &&
		request.ServiceDayID == serviceDayID &&
		request.Status != pickup.StatusCancelled
}

func (t *memoryTx) GetRequest(ctx context.Context, id string) (PickupRequest, error) {
	request, ok := t.requests[id]
	if !ok || request.OrganizationID != t.organizationID {
		return PickupRequest{}, persistence.ErrNotFound
	}
	return request, nil
}

func (t *memoryTx) ListSeriesRequests(ctx context.Context, seriesID string) ([]PickupRequest, error) {
	var out []PickupRequest
	for _, request := range t.requests {
		if request.OrganizationID == t.organizationID && request.SeriesID != nil && *request.SeriesID == seriesID {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestDate.Before(out[j].RequestDate) })
	return out, nil
}

func (t *memoryTx) CreateSeries(ctx context.Context, series PickupSeries) error {
	t.series[series.ID] = series
	return nil
}

// CreateRequest mirrors the partial unique index on active slots.
func (t *memoryTx) CreateRequest(ctx context.Context, request PickupRequest) error {
	if existing, _ := t.FindActiveRequest(ctx, request.UserID, request.ServiceDayID, request.ServiceDate); existing != nil {
		return persistence.ErrDuplicate
	}
	t.requests[request.ID] = request
	return nil
}

func (t *memoryTx) UpdateRequest(ctx context.Context, request PickupRequest) error {
	if _, ok := t.requests[request.ID]; !ok {
		return persistence.ErrNotFound
	}
	t.requests[request.ID] = request
	return nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, event PickupEvent) error {
	t.events = append(t.events, event)
	return nil
}

type geocoderStub struct {
	point *geo.Point
	err   error
	query string
}

func (g *geocoderStub) Geocode(ctx context.Context, address string) (*geo.Point, error) {
	g.query = address
	return g.point, g.err
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
