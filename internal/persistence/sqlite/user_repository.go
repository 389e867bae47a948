package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/persistence"
)

// UserRepository implements persistence.UserRepository using SQLite.
type UserRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewUserRepository creates a new SQLite user repository.
func NewUserRepository(pool *ConnectionPool) *UserRepository {
	return &UserRepository{pool: pool, mapper: NewErrorMapper()}
}

const userColumns = `id, organization_id, name, email, phone, role, status, created_at, updated_at`

// CreateUser inserts a new user.
func (r *UserRepository) CreateUser(ctx context.Context, user persistence.User) error {
	if user.ID == "" || user.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.OrganizationID,
		user.Name,
		normalizeEmail(user.Email),
		user.Phone,
		user.Role,
		user.Status,
		formatTimestamp(user.CreatedAt),
		formatTimestamp(user.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateUser updates the mutable fields of a user.
func (r *UserRepository) UpdateUser(ctx context.Context, user persistence.User) error {
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = time.Now()
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE users
		SET name = ?, email = ?, phone = ?, role = ?, status = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`,
		user.Name,
		normalizeEmail(user.Email),
		user.Phone,
		user.Role,
		user.Status,
		formatTimestamp(user.UpdatedAt),
		user.OrganizationID,
		user.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// GetUser retrieves a user of the organization.
func (r *UserRepository) GetUser(ctx context.Context, organizationID, id string) (persistence.User, error) {
	if id == "" {
		return persistence.User{}, persistence.ErrNotFound
	}
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE organization_id = ? AND id = ?
	`, organizationID, id)

	user, err := scanUser(row)
	if err != nil {
		return persistence.User{}, r.mapper.MapError(err)
	}
	return user, nil
}

// ListUsers returns the organization's users ordered by name then ID.
func (r *UserRepository) ListUsers(ctx context.Context, organizationID string, filter persistence.UserFilter) ([]persistence.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE organization_id = ?`
	args := []any{organizationID}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, *filter.Status)
	}
	if filter.Role != nil {
		query += ` AND role = ?`
		args = append(args, *filter.Role)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var users []persistence.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (persistence.User, error) {
	var (
		user                 persistence.User
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&user.ID,
		&user.OrganizationID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Role,
		&user.Status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.User{}, err
	}

	var err error
	if user.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if user.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.User{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return user, nil
}

// normalizeEmail normalizes email addresses for consistent storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
