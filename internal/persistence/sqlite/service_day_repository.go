package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/church-pickups/internal/persistence"
)

// ServiceDayRepository implements persistence.ServiceDayRepository using SQLite.
type ServiceDayRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewServiceDayRepository creates a new SQLite service day repository.
func NewServiceDayRepository(pool *ConnectionPool) *ServiceDayRepository {
	return &ServiceDayRepository{pool: pool, mapper: NewErrorMapper()}
}

const serviceDayColumns = `id, organization_id, name, service_time, weekdays, frequency, ordinal,
	start_date, end_date, cycle_count, active, created_at, updated_at`

// CreateServiceDay inserts a service day.
func (r *ServiceDayRepository) CreateServiceDay(ctx context.Context, day persistence.ServiceDay) error {
	if day.ID == "" || day.OrganizationID == "" {
		return persistence.ErrConstraintViolation
	}
	if day.CreatedAt.IsZero() {
		day.CreatedAt = time.Now()
	}
	if day.UpdatedAt.IsZero() {
		day.UpdatedAt = day.CreatedAt
	}

	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO service_days (`+serviceDayColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		day.ID,
		day.OrganizationID,
		day.Name,
		day.Time,
		encodeWeekdays(day.Weekdays),
		day.Frequency,
		day.Ordinal,
		formatDatePtr(day.StartDate),
		formatDatePtr(day.EndDate),
		intPtrValue(day.CycleCount),
		boolToInt(day.Active),
		formatTimestamp(day.CreatedAt),
		formatTimestamp(day.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateServiceDay replaces the definition of an existing service day.
func (r *ServiceDayRepository) UpdateServiceDay(ctx context.Context, day persistence.ServiceDay) error {
	if day.UpdatedAt.IsZero() {
		day.UpdatedAt = time.Now()
	}

	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE service_days
		SET name = ?, service_time = ?, weekdays = ?, frequency = ?, ordinal = ?,
			start_date = ?, end_date = ?, cycle_count = ?, active = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`,
		day.Name,
		day.Time,
		encodeWeekdays(day.Weekdays),
		day.Frequency,
		day.Ordinal,
		formatDatePtr(day.StartDate),
		formatDatePtr(day.EndDate),
		intPtrValue(day.CycleCount),
		boolToInt(day.Active),
		formatTimestamp(day.UpdatedAt),
		day.OrganizationID,
		day.ID,
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

// GetServiceDay retrieves a service day of the organization.
func (r *ServiceDayRepository) GetServiceDay(ctx context.Context, organizationID, id string) (persistence.ServiceDay, error) {
	row := r.pool.DB().QueryRowContext(ctx, `
		SELECT `+serviceDayColumns+`
		FROM service_days
		WHERE organization_id = ? AND id = ?
	`, organizationID, id)

	day, err := scanServiceDay(row)
	if err != nil {
		return persistence.ServiceDay{}, r.mapper.MapError(err)
	}
	return day, nil
}

// ListServiceDays returns the organization's service days ordered by name.
func (r *ServiceDayRepository) ListServiceDays(ctx context.Context, organizationID string, includeInactive bool) ([]persistence.ServiceDay, error) {
	query := `SELECT ` + serviceDayColumns + ` FROM service_days WHERE organization_id = ?`
	if !includeInactive {
		query += ` AND active = 1`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var days []persistence.ServiceDay
	for rows.Next() {
		day, err := scanServiceDay(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return days, nil
}

func scanServiceDay(row rowScanner) (persistence.ServiceDay, error) {
	var (
		day                  persistence.ServiceDay
		weekdays             int64
		startDate, endDate   sql.NullString
		cycleCount           sql.NullInt64
		active               int
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&day.ID,
		&day.OrganizationID,
		&day.Name,
		&day.Time,
		&weekdays,
		&day.Frequency,
		&day.Ordinal,
		&startDate,
		&endDate,
		&cycleCount,
		&active,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.ServiceDay{}, err
	}

	day.Weekdays = decodeWeekdays(weekdays)
	day.Active = active != 0
	if cycleCount.Valid {
		count := int(cycleCount.Int64)
		day.CycleCount = &count
	}

	var err error
	if day.StartDate, err = parseDatePtr(startDate); err != nil {
		return persistence.ServiceDay{}, fmt.Errorf("failed to parse start_date: %w", err)
	}
	if day.EndDate, err = parseDatePtr(endDate); err != nil {
		return persistence.ServiceDay{}, fmt.Errorf("failed to parse end_date: %w", err)
	}
	if day.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.ServiceDay{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if day.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.ServiceDay{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return day, nil
}

// encodeWeekdays encodes weekdays as a bitmask for storage. Bit 0 is Sunday.
func encodeWeekdays(weekdays []time.Weekday) int64 {
	var mask int64
	for _, day := range weekdays {
		if day >= time.Sunday && day <= time.Saturday {
			mask |= 1 << uint(day)
		}
	}
	return mask
}

// decodeWeekdays decodes weekdays from a bitmask in Sunday-first order.
func decodeWeekdays(mask int64) []time.Weekday {
	var weekdays []time.Weekday
	for day := time.Sunday; day <= time.Saturday; day++ {
		if mask&(1<<uint(day)) != 0 {
			weekdays = append(weekdays, day)
		}
	}
	return weekdays
}

func intPtrValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
