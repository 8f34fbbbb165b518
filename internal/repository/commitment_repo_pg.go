package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mvoronin91/washbooking/internal/domain"
)

// PGCommitmentStore derives commitments from active bookings that hold a
// resource assignment; there is no separate commitments table. These reads
// feed the allocator; the authoritative check happens again under the
// resource row lock in the booking repository.
type PGCommitmentStore struct {
	db *pgxpool.Pool
}

func NewCommitmentStore(db *pgxpool.Pool) *PGCommitmentStore {
	return &PGCommitmentStore{db: db}
}

func (s *PGCommitmentStore) FindOverlapping(ctx context.Context, resourceID int64, window domain.Window, excludeBookingID string) ([]domain.Commitment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, resource_id, scheduled_at, total_duration_minutes FROM bookings
		WHERE resource_id = $1
		  AND status = ANY($2)
		  AND id <> $3
		  AND scheduled_at <= $4
		  AND scheduled_at + make_interval(mins => total_duration_minutes) >= $5`,
		resourceID, activeStatuses(), excludeBookingID, window.End, window.Start)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commitments []domain.Commitment
	for rows.Next() {
		var (
			c        domain.Commitment
			start    time.Time
			duration int
		)
		if err := rows.Scan(&c.BookingID, &c.ResourceID, &start, &duration); err != nil {
			return nil, err
		}
		c.Window = domain.NewWindow(start, duration)
		commitments = append(commitments, c)
	}
	return commitments, rows.Err()
}

// CountForDay counts a resource's jobs for the UTC day starting at day.
// excludeBookingID keeps a reschedule from counting its own existing job
// against the cap.
func (s *PGCommitmentStore) CountForDay(ctx context.Context, resourceID int64, day time.Time, excludeBookingID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM bookings
		WHERE resource_id = $1
		  AND status <> $2 AND status <> $3
		  AND id <> $4
		  AND scheduled_at >= $5 AND scheduled_at < $6`,
		resourceID, string(domain.BookingStatusCancelled), string(domain.BookingStatusNoShow),
		excludeBookingID, day, day.Add(24*time.Hour)).Scan(&count)
	return count, err
}
