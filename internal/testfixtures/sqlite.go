package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database for integration-style tests.
type SQLiteHarness struct {
	Storage     *sqlite.Storage
	Users       persistence.UserRepository
	Addresses   persistence.AddressRepository
	ServiceDays persistence.ServiceDayRepository
	Pickups     persistence.PickupRepository

	tb      testing.TB
	cleanup func()
}

// NewSQLiteHarness opens a database in tb.TempDir and registers its cleanup with tb.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "pickups.db")
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	storage, err := sqlite.Open(context.Background(), path, logger)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:     storage,
		Users:       storage,
		Addresses:   storage,
		ServiceDays: storage,
		Pickups:     storage,
		tb:          tb,
		cleanup: func() {
			_ = storage.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// SeedUser stores user and returns it.
func (h *SQLiteHarness) SeedUser(user UserFixture) UserFixture {
	h.tb.Helper()
	if err := h.Users.CreateUser(context.Background(), user.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed user %s: %v", user.ID, err)
	}
	return user
}

// SeedAddress stores a new address for user and returns it.
func (h *SQLiteHarness) SeedAddress(user UserFixture) AddressFixture {
	h.tb.Helper()
	address := NewAddressFixture(user)
	if err := h.Addresses.CreateAddress(context.Background(), address.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed address for %s: %v", user.ID, err)
	}
	return address
}

// SeedServiceDay stores day and returns it.
func (h *SQLiteHarness) SeedServiceDay(day ServiceDayFixture) ServiceDayFixture {
	h.tb.Helper()
	if err := h.ServiceDays.CreateServiceDay(context.Background(), day.Persistence()); err != nil {
		h.tb.Fatalf("failed to seed service day %s: %v", day.ID, err)
	}
	return day
}

// SeedRequest stores request in its own transaction.
func (h *SQLiteHarness) SeedRequest(request PickupRequestFixture) PickupRequestFixture {
	h.tb.Helper()
	ctx := context.Background()
	err := h.Pickups.WithinTransaction(ctx, request.OrganizationID, func(tx persistence.PickupTx) error {
		return tx.CreateRequest(ctx, request.Persistence())
	})
	if err != nil {
		h.tb.Fatalf("failed to seed request %s: %v", request.ID, err)
	}
	return request
}
