package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/example/church-pickups/internal/persistence"
)

const testOrg = "org-1"

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	path := filepath.Join(t.TempDir(), "pickups.db")
	storage, err := Open(context.Background(), path, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() {
		_ = storage.Close()
	})

	if err := storage.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return storage
}

// seedMember stores an active user with one address and a Sunday service day.
func seedMember(t *testing.T, storage *Storage, org, suffix string) (persistence.User, persistence.Address, persistence.ServiceDay) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	user := persistence.User{
		ID:             "user-" + suffix,
		OrganizationID: org,
		Name:           "Member " + suffix,
		Email:          "member-" + suffix + "@example.com",
		Role:           "USER",
		Status:         "ACTIVE",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	address := persistence.Address{
		ID:             "addr-" + suffix,
		OrganizationID: org,
		UserID:         user.ID,
		Street:         "1 Chapel Road",
		City:           "Springfield",
		Latitude:       51.5,
		Longitude:      -0.12,
		CreatedAt:      now,
	}
	if err := storage.CreateAddress(ctx, address); err != nil {
		t.Fatalf("CreateAddress failed: %v", err)
	}

	day := persistence.ServiceDay{
		ID:             "day-" + suffix,
		OrganizationID: org,
		Name:           "Sunday Service " + suffix,
		Time:           "10:00",
		Weekdays:       []time.Weekday{time.Sunday},
		Frequency:      "WEEKLY",
		Ordinal:        "NEXT",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := storage.CreateServiceDay(ctx, day); err != nil {
		t.Fatalf("CreateServiceDay failed: %v", err)
	}
	return user, address, day
}

func newRequest(id string, user persistence.User, address persistence.Address, day persistence.ServiceDay, date time.Time) persistence.PickupRequest {
	return persistence.PickupRequest{
		ID:             id,
		OrganizationID: user.OrganizationID,
		UserID:         user.ID,
		ServiceDayID:   day.ID,
		AddressID:      address.ID,
		RequestDate:    date,
		ServiceDate:    date.Format(time.DateOnly),
		Status:         "PENDING",
		Pickup:         true,
		GroupSize:      1,
		CreatedAt:      date.Add(-72 * time.Hour),
		UpdatedAt:      date.Add(-72 * time.Hour),
	}
}

func TestWeekdayBitmask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		weekdays []time.Weekday
		mask     int64
		decoded  []time.Weekday
	}{
		{name: "sunday only", weekdays: []time.Weekday{time.Sunday}, mask: 1, decoded: []time.Weekday{time.Sunday}},
		{name: "unordered with duplicates", weekdays: []time.Weekday{time.Saturday, time.Wednesday, time.Saturday}, mask: 1<<3 | 1<<6, decoded: []time.Weekday{time.Wednesday, time.Saturday}},
		{name: "out of range ignored", weekdays: []time.Weekday{time.Monday, time.Weekday(9)}, mask: 2, decoded: []time.Weekday{time.Monday}},
		{name: "empty", weekdays: nil, mask: 0, decoded: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			mask := encodeWeekdays(tc.weekdays)
			if mask != tc.mask {
				t.Fatalf("expected mask %b, got %b", tc.mask, mask)
			}
			if got := decodeWeekdays(mask); !reflect.DeepEqual(got, tc.decoded) {
				t.Fatalf("expected %v, got %v", tc.decoded, got)
			}
		})
	}
}

func TestUserAndAddressRepositories(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	user, address, _ := seedMember(t, storage, testOrg, "a")

	fetched, err := storage.GetUser(ctx, testOrg, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if fetched.Email != user.Email || fetched.Status != "ACTIVE" {
		t.Fatalf("unexpected user retrieved: %#v", fetched)
	}

	duplicate := user
	duplicate.ID = "user-dup"
	duplicate.Email = "MEMBER-A@example.com"
	if err := storage.CreateUser(ctx, duplicate); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for repeated email, got %v", err)
	}

	user.Status = "DISABLED"
	user.UpdatedAt = user.UpdatedAt.Add(time.Hour)
	if err := storage.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	disabled := "DISABLED"
	users, err := storage.ListUsers(ctx, testOrg, persistence.UserFilter{Status: &disabled})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != user.ID {
		t.Fatalf("unexpected filtered users: %#v", users)
	}

	missing := user
	missing.ID = "user-missing"
	if err := storage.UpdateUser(ctx, missing); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating unknown user, got %v", err)
	}

	addresses, err := storage.ListAddressesForUser(ctx, testOrg, user.ID)
	if err != nil {
		t.Fatalf("ListAddressesForUser failed: %v", err)
	}
	if len(addresses) != 1 || addresses[0].ID != address.ID || addresses[0].Latitude != address.Latitude {
		t.Fatalf("unexpected addresses: %#v", addresses)
	}

	orphan := address
	orphan.ID = "addr-orphan"
	orphan.UserID = "nobody"
	if err := storage.CreateAddress(ctx, orphan); !errors.Is(err, persistence.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestServiceDayRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	_, _, day := seedMember(t, storage, testOrg, "a")

	start := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	cycles := 4
	day.Weekdays = []time.Weekday{time.Wednesday, time.Sunday}
	day.StartDate = &start
	day.EndDate = &end
	day.CycleCount = &cycles
	if err := storage.UpdateServiceDay(ctx, day); err != nil {
		t.Fatalf("UpdateServiceDay failed: %v", err)
	}

	fetched, err := storage.GetServiceDay(ctx, testOrg, day.ID)
	if err != nil {
		t.Fatalf("GetServiceDay failed: %v", err)
	}
	if !reflect.DeepEqual(fetched.Weekdays, []time.Weekday{time.Sunday, time.Wednesday}) {
		t.Fatalf("unexpected weekdays: %v", fetched.Weekdays)
	}
	if fetched.StartDate == nil || !fetched.StartDate.Equal(start) || fetched.EndDate == nil || !fetched.EndDate.Equal(end) {
		t.Fatalf("unexpected date range: %v - %v", fetched.StartDate, fetched.EndDate)
	}
	if fetched.CycleCount == nil || *fetched.CycleCount != cycles {
		t.Fatalf("unexpected cycle count: %v", fetched.CycleCount)
	}

	invalid := day
	invalid.ID = "day-invalid"
	invalid.Weekdays = nil
	if err := storage.CreateServiceDay(ctx, invalid); !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation for empty weekdays, got %v", err)
	}

	day.Active = false
	if err := storage.UpdateServiceDay(ctx, day); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	active, err := storage.ListServiceDays(ctx, testOrg, false)
	if err != nil {
		t.Fatalf("ListServiceDays failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active days, got %#v", active)
	}
	all, err := storage.ListServiceDays(ctx, testOrg, true)
	if err != nil {
		t.Fatalf("ListServiceDays failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected inactive day to be listed, got %#v", all)
	}
}

func TestPickupRepository_TransactionalWrites(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	user, address, day := seedMember(t, storage, testOrg, "a")
	first := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 7)
	seriesID := "series-1"

	err := storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		if err := tx.CreateSeries(ctx, persistence.PickupSeries{ID: seriesID, CreatedAt: first.Add(-72 * time.Hour)}); err != nil {
			return err
		}
		for i, date := range []time.Time{first, second} {
			request := newRequest([]string{"req-1", "req-2"}[i], user, address, day, date)
			request.SeriesID = &seriesID
			if err := tx.CreateRequest(ctx, request); err != nil {
				return err
			}
			if err := tx.AppendEvent(ctx, persistence.PickupEvent{
				ID:        "evt-" + request.ID,
				RequestID: request.ID,
				Kind:      "created",
				ActorID:   user.ID,
				CreatedAt: request.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTransaction failed: %v", err)
	}

	fetched, err := storage.GetRequest(ctx, testOrg, "req-1")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if !fetched.RequestDate.Equal(first) || fetched.SeriesID == nil || *fetched.SeriesID != seriesID || !fetched.Pickup {
		t.Fatalf("unexpected request: %#v", fetched)
	}

	events, err := storage.ListEvents(ctx, testOrg, "req-2")
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != "created" {
		t.Fatalf("unexpected events: %#v", events)
	}

	err = storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		existing, err := tx.FindActiveRequest(ctx, user.ID, day.ID, "2024-03-10")
		if err != nil {
			return err
		}
		if existing == nil || existing.ID != "req-1" {
			t.Errorf("expected req-1 to occupy the slot, got %#v", existing)
		}
		active, err := tx.ListActiveRequests(ctx, user.ID, day.ID, "2024-03-10", "2024-03-17")
		if err != nil {
			return err
		}
		if len(active) != 2 {
			t.Errorf("expected both requests in the inclusive range, got %d", len(active))
		}
		series, err := tx.ListSeriesRequests(ctx, seriesID)
		if err != nil {
			return err
		}
		if len(series) != 2 {
			t.Errorf("expected 2 series requests, got %d", len(series))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("read transaction failed: %v", err)
	}
}

func TestPickupRepository_ActiveSlotUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	user, address, day := seedMember(t, storage, testOrg, "a")
	date := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

	create := func(id string) error {
		return storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
			return tx.CreateRequest(ctx, newRequest(id, user, address, day, date))
		})
	}

	if err := create("req-1"); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := create("req-2"); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for the same slot, got %v", err)
	}

	err := storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		request, err := tx.GetRequest(ctx, "req-1")
		if err != nil {
			return err
		}
		request.Status = "CANCELLED"
		request.UpdatedAt = request.UpdatedAt.Add(time.Minute)
		return tx.UpdateRequest(ctx, request)
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if err := create("req-3"); err != nil {
		t.Fatalf("expected a cancelled request to free its slot, got %v", err)
	}

	// A new service time on the same calendar date is still the same slot.
	err = storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		return tx.CreateRequest(ctx, newRequest("req-4", user, address, day, date.Add(-time.Hour)))
	})
	if !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for an earlier start on the same date, got %v", err)
	}
}

func TestPickupRepository_RejectsMissingServiceDate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	user, address, day := seedMember(t, storage, testOrg, "a")
	request := newRequest("req-1", user, address, day, time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC))
	request.ServiceDate = ""

	err := storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		return tx.CreateRequest(ctx, request)
	})
	if !errors.Is(err, persistence.ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestPickupRepository_RollbackOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	user, address, day := seedMember(t, storage, testOrg, "a")
	date := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	abort := errors.New("abort")

	err := storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
		if err := tx.CreateSeries(ctx, persistence.PickupSeries{ID: "series-1"}); err != nil {
			return err
		}
		if err := tx.CreateRequest(ctx, newRequest("req-1", user, address, day, date)); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if _, err := storage.GetRequest(ctx, testOrg, "req-1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected rolled back request to be absent, got %v", err)
	}
}

func TestPickupRepository_ListRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	storage := newTestStorage(t)

	userA, addressA, dayA := seedMember(t, storage, testOrg, "a")
	driver, _, _ := seedMember(t, storage, testOrg, "d")
	userB, addressB, dayB := seedMember(t, storage, "org-2", "b")

	base := time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)
	assigned := newRequest("req-assigned", userA, addressA, dayA, base)
	assigned.Status = "ACCEPTED"
	assigned.DriverID = &driver.ID
	distance := 3.25
	assigned.DistanceKm = &distance
	open := newRequest("req-open", userA, addressA, dayA, base.AddDate(0, 0, 7))
	other := newRequest("req-other-tenant", userB, addressB, dayB, base)

	for _, request := range []persistence.PickupRequest{assigned, open} {
		request := request
		if err := storage.WithinTransaction(ctx, testOrg, func(tx persistence.PickupTx) error {
			return tx.CreateRequest(ctx, request)
		}); err != nil {
			t.Fatalf("create %s failed: %v", request.ID, err)
		}
	}
	if err := storage.WithinTransaction(ctx, "org-2", func(tx persistence.PickupTx) error {
		return tx.CreateRequest(ctx, other)
	}); err != nil {
		t.Fatalf("create other tenant request failed: %v", err)
	}

	until := base.AddDate(0, 0, 1)
	tests := []struct {
		name   string
		filter persistence.PickupFilter
		want   []string
	}{
		{name: "whole tenant", filter: persistence.PickupFilter{}, want: []string{"req-assigned", "req-open"}},
		{name: "driver assignments only", filter: persistence.PickupFilter{DriverID: &driver.ID}, want: []string{"req-assigned"}},
		{name: "driver with open requests", filter: persistence.PickupFilter{DriverID: &driver.ID, IncludeOpen: true}, want: []string{"req-assigned", "req-open"}},
		{name: "status filter", filter: persistence.PickupFilter{Statuses: []string{"PENDING"}}, want: []string{"req-open"}},
		{name: "date range", filter: persistence.PickupFilter{From: &base, Until: &until}, want: []string{"req-assigned"}},
		{name: "requester", filter: persistence.PickupFilter{UserID: &userB.ID}, want: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			requests, err := storage.ListRequests(ctx, testOrg, tc.filter)
			if err != nil {
				t.Fatalf("ListRequests failed: %v", err)
			}
			var ids []string
			for _, request := range requests {
				ids = append(ids, request.ID)
			}
			if !reflect.DeepEqual(ids, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, ids)
			}
		})
	}

	fetched, err := storage.GetRequest(ctx, testOrg, "req-assigned")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if fetched.DistanceKm == nil || *fetched.DistanceKm != distance {
		t.Fatalf("expected distance to round-trip, got %v", fetched.DistanceKm)
	}

	if _, err := storage.GetRequest(ctx, "org-2", "req-assigned"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected tenant isolation, got %v", err)
	}
}
