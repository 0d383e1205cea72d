package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/AdwelloTech/MathMentor-sub000/internal/db"
	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// PostgresSubjectRepository reads the subject catalog. The catalog itself is
// authored elsewhere; this service only needs the bookable list.
type PostgresSubjectRepository struct {
	pool db.Pool
}

// NewPostgresSubjectRepository constructs a subject repository backed by PostgreSQL.
func NewPostgresSubjectRepository(pool db.Pool) *PostgresSubjectRepository {
	return &PostgresSubjectRepository{pool: pool}
}

// ListActive returns the subjects a student may request help with.
func (r *PostgresSubjectRepository) ListActive(ctx context.Context) ([]models.Subject, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, display_name, active
        FROM subjects
        WHERE active
        ORDER BY display_name ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var subjects []models.Subject
	for rows.Next() {
		var subject models.Subject
		if err := rows.Scan(&subject.ID, &subject.DisplayName, &subject.Active); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subjects: %w", err)
	}

	return subjects, nil
}

// Find fetches one subject by id.
func (r *PostgresSubjectRepository) Find(ctx context.Context, subjectID string) (models.Subject, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Subject{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, display_name, active
        FROM subjects
        WHERE id = $1
    `, subjectID)

	var subject models.Subject
	if err := row.Scan(&subject.ID, &subject.DisplayName, &subject.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Subject{}, ErrNotFound
		}
		return models.Subject{}, fmt.Errorf("select subject: %w", err)
	}

	return subject, nil
}
