package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/church-pickups/internal/persistence"
	"github.com/example/church-pickups/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*UserRepository
	*AddressRepository
	*ServiceDayRepository
	*PickupRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.UserRepository       = (*Storage)(nil)
	_ persistence.AddressRepository    = (*Storage)(nil)
	_ persistence.ServiceDayRepository = (*Storage)(nil)
	_ persistence.PickupRepository     = (*Storage)(nil)
)

// Open connects to the database at path using the default settings.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Storage, error) {
	return OpenWithConfig(ctx, migration.DefaultSQLiteConfig(path), logger)
}

// OpenWithConfig connects using an explicit configuration.
func OpenWithConfig(ctx context.Context, config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	return &Storage{
		UserRepository:       NewUserRepository(pool),
		AddressRepository:    NewAddressRepository(pool),
		ServiceDayRepository: NewServiceDayRepository(pool),
		PickupRepository:     NewPickupRepository(pool, DefaultRetryConfig()),
		pool:                 pool,
		logger:               logger,
	}, nil
}

// Migrate applies the embedded schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationsFS, "migrations"),
		migration.NewSQLiteExecutor(s.pool.DB()),
		s.logger,
	)
	if err := manager.Run(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
