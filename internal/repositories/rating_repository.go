package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdwelloTech/MathMentor-sub000/internal/db"
	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// PostgresRatingRepository persists one-time post-session ratings. A unique
// constraint on request_id enforces first-write-wins.
type PostgresRatingRepository struct {
	pool db.Pool
}

// NewPostgresRatingRepository constructs a rating repository backed by PostgreSQL.
func NewPostgresRatingRepository(pool db.Pool) *PostgresRatingRepository {
	return &PostgresRatingRepository{pool: pool}
}

// Create inserts a rating. A duplicate submission for the same request
// returns ErrConflict and leaves the original untouched.
func (r *PostgresRatingRepository) Create(ctx context.Context, rating models.Rating) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO session_ratings (id, request_id, tutor_id, rating, comment, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, rating.ID, rating.RequestID, rating.TutorID, rating.Rating, rating.Comment, rating.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert rating: %w", err)
	}

	return nil
}

// FindByRequest fetches the rating recorded for a request, if any.
func (r *PostgresRatingRepository) FindByRequest(ctx context.Context, requestID string) (models.Rating, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Rating{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, request_id, tutor_id, rating, comment, created_at
        FROM session_ratings
        WHERE request_id = $1
    `, requestID)

	var rating models.Rating
	if err := row.Scan(&rating.ID, &rating.RequestID, &rating.TutorID, &rating.Rating, &rating.Comment, &rating.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Rating{}, ErrNotFound
		}
		return models.Rating{}, fmt.Errorf("select rating: %w", err)
	}

	return rating, nil
}
