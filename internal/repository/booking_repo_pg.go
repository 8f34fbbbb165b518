package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/internal/domain"
)

type BookingRepository interface {
	// Create reserves the assigned resource for the given (already buffered)
	// window and inserts the booking in one transaction. A window lost to a
	// concurrent writer surfaces as domain.ErrConcurrencyConflict.
	Create(ctx context.Context, b *domain.Booking, reserve domain.Window) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	Update(ctx context.Context, b *domain.Booking) error
	// Reassign atomically re-reserves a window for a rescheduled booking,
	// ignoring the booking's own previous commitment.
	Reassign(ctx context.Context, b *domain.Booking, reserve domain.Window) error
	ListOverdueConfirmed(ctx context.Context, cutoff time.Time) ([]domain.Booking, error)
}

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

const bookingColumns = `id, customer_id, vehicle_id, vehicle_size, service_ids, kind, location_lat, location_lng,
	scheduled_at, total_duration_minutes, total_price_cents, status, resource_id, actual_start, actual_end,
	cancellation_fee_cents, overtime_charge_cents, rating_score, rating_feedback, created_at, updated_at`

func activeStatuses() []string {
	out := make([]string, len(domain.ActiveStatuses))
	for i, s := range domain.ActiveStatuses {
		out[i] = string(s)
	}
	return out
}

// lockResourceAndCheck takes a row lock on the resource and rejects the
// reservation if any active booking already overlaps the window, or if a
// mobile team is already at its daily cap. Holding the lock until commit is
// what makes concurrent create calls serialize; the allocator's unlocked
// reads are only a pre-filter.
func lockResourceAndCheck(ctx context.Context, tx pgx.Tx, b *domain.Booking, reserve domain.Window) error {
	resourceID := *b.ResourceID

	var (
		kind     string
		capacity int
	)
	if err := tx.QueryRow(ctx, `SELECT kind, daily_capacity FROM resources WHERE id=$1 AND is_active FOR UPDATE`, resourceID).Scan(&kind, &capacity); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: resource %d", domain.ErrNotFound, resourceID)
		}
		return err
	}

	var busy int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM bookings
		WHERE resource_id = $1
		  AND status = ANY($2)
		  AND id <> $3
		  AND scheduled_at <= $4
		  AND scheduled_at + make_interval(mins => total_duration_minutes) >= $5`,
		resourceID, activeStatuses(), b.ID, reserve.End, reserve.Start).Scan(&busy)
	if err != nil {
		return err
	}
	if busy > 0 {
		return fmt.Errorf("%w: resource %d window already taken", domain.ErrConcurrencyConflict, resourceID)
	}

	if domain.BookingKind(kind) == domain.BookingKindMobile && capacity > 0 {
		dayStart, dayEnd := dayRange(b.ScheduledAt)
		var jobs int
		err := tx.QueryRow(ctx, `
			SELECT count(*) FROM bookings
			WHERE resource_id = $1
			  AND status <> $2 AND status <> $3
			  AND id <> $4
			  AND scheduled_at >= $5 AND scheduled_at < $6`,
			resourceID, string(domain.BookingStatusCancelled), string(domain.BookingStatusNoShow),
			b.ID, dayStart, dayEnd).Scan(&jobs)
		if err != nil {
			return err
		}
		if jobs >= capacity {
			return fmt.Errorf("%w: resource %d at daily capacity %d", domain.ErrConcurrencyConflict, resourceID, capacity)
		}
	}
	return nil
}

// dayRange bounds the UTC day containing t, matching the day the allocator
// counts jobs over.
func dayRange(t time.Time) (time.Time, time.Time) {
	start := t.UTC().Truncate(24 * time.Hour)
	return start, start.Add(24 * time.Hour)
}

func (r *PGBookingRepository) Create(ctx context.Context, b *domain.Booking, reserve domain.Window) error {
	if b.ResourceID == nil {
		return fmt.Errorf("%w: booking has no resource assignment", domain.ErrInvalidInput)
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockResourceAndCheck(ctx, tx, b, reserve); err != nil {
		return err
	}

	var lat, lng *float64
	if b.Location != nil {
		lat, lng = &b.Location.Latitude, &b.Location.Longitude
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO bookings (id, customer_id, vehicle_id, vehicle_size, service_ids, kind, location_lat, location_lng,
			scheduled_at, total_duration_minutes, total_price_cents, status, resource_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		b.ID, b.CustomerID, b.VehicleID, int(b.VehicleSize), b.ServiceIDs, string(b.Kind), lat, lng,
		b.ScheduledAt, b.TotalDurationMinutes, b.TotalPriceCents, string(b.Status), *b.ResourceID).
		Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: booking %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return b, nil
}

func (r *PGBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	var lat, lng *float64
	if b.Location != nil {
		lat, lng = &b.Location.Latitude, &b.Location.Longitude
	}
	cmd, err := r.db.Exec(ctx, `
		UPDATE bookings SET
			service_ids=$2, location_lat=$3, location_lng=$4, scheduled_at=$5, total_duration_minutes=$6,
			total_price_cents=$7, status=$8, resource_id=$9, actual_start=$10, actual_end=$11,
			cancellation_fee_cents=$12, overtime_charge_cents=$13, rating_score=$14, rating_feedback=$15,
			updated_at=now()
		WHERE id=$1`,
		b.ID, b.ServiceIDs, lat, lng, b.ScheduledAt, b.TotalDurationMinutes,
		b.TotalPriceCents, string(b.Status), b.ResourceID, b.ActualStart, b.ActualEnd,
		b.CancellationFeeCents, b.OvertimeChargeCents, b.RatingScore, b.RatingFeedback)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, b.ID)
	}
	return nil
}

func (r *PGBookingRepository) Reassign(ctx context.Context, b *domain.Booking, reserve domain.Window) error {
	if b.ResourceID == nil {
		return fmt.Errorf("%w: booking has no resource assignment", domain.ErrInvalidInput)
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := lockResourceAndCheck(ctx, tx, b, reserve); err != nil {
		return err
	}

	cmd, err := tx.Exec(ctx, `UPDATE bookings SET scheduled_at=$2, resource_id=$3, updated_at=now() WHERE id=$1`,
		b.ID, b.ScheduledAt, *b.ResourceID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: booking %s", domain.ErrNotFound, b.ID)
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) ListOverdueConfirmed(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND actual_start IS NULL AND scheduled_at <= $2`,
		string(domain.BookingStatusConfirmed), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, *b)
	}
	return overdue, rows.Err()
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b           domain.Booking
		vehicleSize int
		kind        string
		status      string
		lat, lng    *float64
	)
	if err := row.Scan(&b.ID, &b.CustomerID, &b.VehicleID, &vehicleSize, &b.ServiceIDs, &kind, &lat, &lng,
		&b.ScheduledAt, &b.TotalDurationMinutes, &b.TotalPriceCents, &status, &b.ResourceID, &b.ActualStart, &b.ActualEnd,
		&b.CancellationFeeCents, &b.OvertimeChargeCents, &b.RatingScore, &b.RatingFeedback, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.VehicleSize = domain.VehicleSize(vehicleSize)
	b.Kind = domain.BookingKind(kind)
	b.Status = domain.BookingStatus(status)
	if lat != nil && lng != nil {
		b.Location = &domain.GeoPoint{Latitude: *lat, Longitude: *lng}
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
