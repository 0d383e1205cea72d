package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdwelloTech/MathMentor-sub000/internal/db"
	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// PostgresBookingRepository persists the best-effort audit bookings created
// after a successful match.
type PostgresBookingRepository struct {
	pool db.Pool
}

// NewPostgresBookingRepository constructs a booking repository backed by PostgreSQL.
func NewPostgresBookingRepository(pool db.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// Create inserts one audit booking record.
func (r *PostgresBookingRepository) Create(ctx context.Context, booking models.Booking) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO bookings (id, student_id, tutor_id, start_at, end_at, meeting_url, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, booking.ID, booking.StudentID, booking.TutorID, booking.StartAt, booking.EndAt, booking.MeetingURL, booking.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}

	return nil
}
