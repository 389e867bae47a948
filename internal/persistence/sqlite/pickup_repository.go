package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/church-pickups/internal/persistence"
)

// PickupRepository implements persistence.PickupRepository using SQLite.
type PickupRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewPickupRepository creates a new SQLite pickup repository.
func NewPickupRepository(pool *ConnectionPool, retry RetryConfig) *PickupRepository {
	return &PickupRepository{pool: pool, mapper: NewErrorMapper(), retry: NewRetryHelper(retry)}
}

const pickupColumns = `id, organization_id, user_id, service_day_id, address_id, request_date, service_date, status,
	driver_id, distance_km, series_id, pickup, drop_off, group_ride, group_size, notes,
	created_at, updated_at, deleted_at`

// GetRequest retrieves a non-deleted request of the organization.
func (r *PickupRepository) GetRequest(ctx context.Context, organizationID, id string) (persistence.PickupRequest, error) {
	return getRequest(ctx, r.pool.DB(), r.mapper, organizationID, id)
}

// ListRequests returns requests matching filter ordered by request date.
func (r *PickupRepository) ListRequests(ctx context.Context, organizationID string, filter persistence.PickupFilter) ([]persistence.PickupRequest, error) {
	clauses := []string{"organization_id = ?", "deleted_at IS NULL"}
	args := []any{organizationID}

	if filter.UserID != nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.DriverID != nil {
		if filter.IncludeOpen {
			clauses = append(clauses, "(driver_id = ? OR (status = 'PENDING' AND driver_id IS NULL))")
		} else {
			clauses = append(clauses, "driver_id = ?")
		}
		args = append(args, *filter.DriverID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.Statuses)), ", ")
		clauses = append(clauses, "status IN ("+placeholders+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if filter.ServiceDayID != nil {
		clauses = append(clauses, "service_day_id = ?")
		args = append(args, *filter.ServiceDayID)
	}
	if filter.SeriesID != nil {
		clauses = append(clauses, "series_id = ?")
		args = append(args, *filter.SeriesID)
	}
	if filter.From != nil {
		clauses = append(clauses, "request_date >= ?")
		args = append(args, formatTimestamp(*filter.From))
	}
	if filter.Until != nil {
		clauses = append(clauses, "request_date < ?")
		args = append(args, formatTimestamp(*filter.Until))
	}

	query := `SELECT ` + pickupColumns + ` FROM pickup_requests WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY request_date ASC, id ASC`
	return queryRequests(ctx, r.pool.DB(), r.mapper, query, args...)
}

// ListEvents returns the audit trail of a request, oldest first.
func (r *PickupRepository) ListEvents(ctx context.Context, organizationID, requestID string) ([]persistence.PickupEvent, error) {
	rows, err := r.pool.DB().QueryContext(ctx, `
		SELECT id, organization_id, request_id, kind, actor_id, note, created_at
		FROM pickup_events
		WHERE organization_id = ? AND request_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, organizationID, requestID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.PickupEvent
	for rows.Next() {
		var (
			event     persistence.PickupEvent
			createdAt string
		)
		if err := rows.Scan(&event.ID, &event.OrganizationID, &event.RequestID, &event.Kind, &event.ActorID, &event.Note, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if event.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// WithinTransaction runs fn inside one write transaction, retrying when the database is busy.
func (r *PickupRepository) WithinTransaction(ctx context.Context, organizationID string, fn func(tx persistence.PickupTx) error) error {
	if organizationID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			return fn(&pickupTx{tx: tx, organizationID: organizationID, mapper: r.mapper})
		})
	})
}

type pickupTx struct {
	tx             *sql.Tx
	organizationID string
	mapper         *ErrorMapper
}

func (t *pickupTx) FindActiveRequest(ctx context.Context, userID, serviceDayID, serviceDate string) (*persistence.PickupRequest, error) {
	requests, err := queryRequests(ctx, t.tx, t.mapper, `
		SELECT `+pickupColumns+`
		FROM pickup_requests
		WHERE organization_id = ? AND user_id = ? AND service_day_id = ? AND service_date = ?
			AND status <> 'CANCELLED' AND deleted_at IS NULL
		LIMIT 1
	`, t.organizationID, userID, serviceDayID, serviceDate)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

func (t *pickupTx) ListActiveRequests(ctx context.Context, userID, serviceDayID, fromDate, untilDate string) ([]persistence.PickupRequest, error) {
	return queryRequests(ctx, t.tx, t.mapper, `
		SELECT `+pickupColumns+`
		FROM pickup_requests
		WHERE organization_id = ? AND user_id = ? AND service_day_id = ?
			AND service_date >= ? AND service_date <= ?
			AND status <> 'CANCELLED' AND deleted_at IS NULL
		ORDER BY service_date ASC
	`, t.organizationID, userID, serviceDayID, fromDate, untilDate)
}

func (t *pickupTx) GetRequest(ctx context.Context, id string) (persistence.PickupRequest, error) {
	return getRequest(ctx, t.tx, t.mapper, t.organizationID, id)
}

func (t *pickupTx) ListSeriesRequests(ctx context.Context, seriesID string) ([]persistence.PickupRequest, error) {
	return queryRequests(ctx, t.tx, t.mapper, `
		SELECT `+pickupColumns+`
		FROM pickup_requests
		WHERE organization_id = ? AND series_id = ? AND deleted_at IS NULL
		ORDER BY request_date ASC, id ASC
	`, t.organizationID, seriesID)
}

func (t *pickupTx) CreateSeries(ctx context.Context, series persistence.PickupSeries) error {
	if series.CreatedAt.IsZero() {
		series.CreatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pickup_series (id, organization_id, created_at) VALUES (?, ?, ?)
	`, series.ID, t.organizationID, formatTimestamp(series.CreatedAt))
	return t.mapper.MapError(err)
}

func (t *pickupTx) CreateRequest(ctx context.Context, request persistence.PickupRequest) error {
	if request.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if _, err := time.Parse(dateLayout, request.ServiceDate); err != nil {
		return fmt.Errorf("%w: service date %q", persistence.ErrConstraintViolation, request.ServiceDate)
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now()
	}
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = request.CreatedAt
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pickup_requests (`+pickupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		request.ID,
		t.organizationID,
		request.UserID,
		request.ServiceDayID,
		request.AddressID,
		formatTimestamp(request.RequestDate),
		request.ServiceDate,
		request.Status,
		stringPtrValue(request.DriverID),
		floatPtrValue(request.DistanceKm),
		stringPtrValue(request.SeriesID),
		boolToInt(request.Pickup),
		boolToInt(request.DropOff),
		boolToInt(request.GroupRide),
		request.GroupSize,
		request.Notes,
		formatTimestamp(request.CreatedAt),
		formatTimestamp(request.UpdatedAt),
		timestampPtrValue(request.DeletedAt),
	)
	return t.mapper.MapError(err)
}

func (t *pickupTx) UpdateRequest(ctx context.Context, request persistence.PickupRequest) error {
	if request.UpdatedAt.IsZero() {
		request.UpdatedAt = time.Now()
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE pickup_requests
		SET address_id = ?, status = ?, driver_id = ?, distance_km = ?, pickup = ?, drop_off = ?,
			group_ride = ?, group_size = ?, notes = ?, updated_at = ?, deleted_at = ?
		WHERE organization_id = ? AND id = ?
	`,
		request.AddressID,
		request.Status,
		stringPtrValue(request.DriverID),
		floatPtrValue(request.DistanceKm),
		boolToInt(request.Pickup),
		boolToInt(request.DropOff),
		boolToInt(request.GroupRide),
		request.GroupSize,
		request.Notes,
		formatTimestamp(request.UpdatedAt),
		timestampPtrValue(request.DeletedAt),
		t.organizationID,
		request.ID,
	)
	if err != nil {
		return t.mapper.MapError(err)
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

func (t *pickupTx) AppendEvent(ctx context.Context, event persistence.PickupEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pickup_events (id, organization_id, request_id, kind, actor_id, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, t.organizationID, event.RequestID, event.Kind, event.ActorID, event.Note, formatTimestamp(event.CreatedAt))
	return t.mapper.MapError(err)
}

func getRequest(ctx context.Context, q querier, mapper *ErrorMapper, organizationID, id string) (persistence.PickupRequest, error) {
	if id == "" {
		return persistence.PickupRequest{}, persistence.ErrNotFound
	}
	row := q.QueryRowContext(ctx, `
		SELECT `+pickupColumns+`
		FROM pickup_requests
		WHERE organization_id = ? AND id = ? AND deleted_at IS NULL
	`, organizationID, id)

	request, err := scanPickupRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.PickupRequest{}, persistence.ErrNotFound
		}
		return persistence.PickupRequest{}, mapper.MapError(err)
	}
	return request, nil
}

func queryRequests(ctx context.Context, q querier, mapper *ErrorMapper, query string, args ...any) ([]persistence.PickupRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapper.MapError(err)
	}
	defer rows.Close()

	var requests []persistence.PickupRequest
	for rows.Next() {
		request, err := scanPickupRequest(rows)
		if err != nil {
			return nil, mapper.MapError(err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, mapper.MapError(err)
	}
	return requests, nil
}

func scanPickupRequest(row rowScanner) (persistence.PickupRequest, error) {
	var (
		request                    persistence.PickupRequest
		requestDate                string
		driverID, seriesID         sql.NullString
		distance                   sql.NullFloat64
		pickup, dropOff, groupRide int
		createdAt, updatedAt       string
		deletedAt                  sql.NullString
	)
	if err := row.Scan(
		&request.ID,
		&request.OrganizationID,
		&request.UserID,
		&request.ServiceDayID,
		&request.AddressID,
		&requestDate,
		&request.ServiceDate,
		&request.Status,
		&driverID,
		&distance,
		&seriesID,
		&pickup,
		&dropOff,
		&groupRide,
		&request.GroupSize,
		&request.Notes,
		&createdAt,
		&updatedAt,
		&deletedAt,
	); err != nil {
		return persistence.PickupRequest{}, err
	}

	request.Pickup = pickup != 0
	request.DropOff = dropOff != 0
	request.GroupRide = groupRide != 0
	if driverID.Valid {
		request.DriverID = &driverID.String
	}
	if seriesID.Valid {
		request.SeriesID = &seriesID.String
	}
	if distance.Valid {
		request.DistanceKm = &distance.Float64
	}

	var err error
	if request.RequestDate, err = parseTimestamp(requestDate); err != nil {
		return persistence.PickupRequest{}, fmt.Errorf("failed to parse request_date: %w", err)
	}
	if request.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return persistence.PickupRequest{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if request.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return persistence.PickupRequest{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if deletedAt.Valid {
		deleted, err := parseTimestamp(deletedAt.String)
		if err != nil {
			return persistence.PickupRequest{}, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		request.DeletedAt = &deleted
	}
	return request, nil
}

func stringPtrValue(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtrValue(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func timestampPtrValue(v *time.Time) any {
	if v == nil {
		return nil
	}
	return formatTimestamp(*v)
}
