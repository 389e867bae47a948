package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/example/church-pickups/internal/persistence"
)

// AddressRepository implements persistence.AddressRepository using SQLite.
type AddressRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewAddressRepository creates a new SQLite address repository.
func NewAddressRepository(pool *ConnectionPool) *AddressRepository {
	return &AddressRepository{pool: pool, mapper: NewErrorMapper()}
}

const addressColumns = `id, organization_id, user_id, street, city, postal_code, latitude, longitude, created_at`

// CreateAddress inserts a geocoded address.
func (r *AddressRepository) CreateAddress(ctx context.Context, address persistence.Address) error {
	if address.ID == "" || address.OrganizationID == "" || address.UserID == "" {
		return persistence.ErrConstraintViolation
	}
	if address.CreatedAt.IsZero() {
		address.CreatedAt = time.Now()
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO addresses (`+addressColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		address.ID,
		address.OrganizationID,
		address.UserID,
		address.Street,
		address.City,
		address.PostalCode,
		address.Latitude,
		address.Longitude,
		formatTimestamp(address.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetAddress retrieves an address of the organization.
func (r *AddressRepository) GetAddress(ctx context.Context, organizationID, id string) (persistence.Address, error) {
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE organization_id = ? AND id = ?
	`, organizationID, id)

	address, err := scanAddress(row)
	if err != nil {
		return persistence.Address{}, r.mapper.MapError(err)
	}
	return address, nil
}

// ListAddressesForUser returns a user's addresses, oldest first.
func (r *AddressRepository) ListAddressesForUser(ctx context.Context, organizationID, userID string) ([]persistence.Address, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT `+addressColumns+`
		FROM addresses
		WHERE organization_id = ? AND user_id = ?
		ORDER BY created_at ASC, id ASC
	`, organizationID, userID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var addresses []persistence.Address
	for rows.Next() {
		address, err := scanAddress(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return addresses, nil
}

func scanAddress(row rowScanner) (persistence.Address, error) {
	var (
		address   persistence.Address
		createdAt string
	)
	if err := row.Scan(
		&address.ID,
		&address.OrganizationID,
		&address.UserID,
		&address.Street,
		&address.City,
		&address.PostalCode,
		&address.Latitude,
		&address.Longitude,
		&createdAt,
	); err != nil {
		return persistence.Address{}, err
	}

	var err error
	if address.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.Address{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return address, nil
}
