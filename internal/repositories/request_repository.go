package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/AdwelloTech/MathMentor-sub000/internal/db"
	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// PostgresRequestRepository provides PostgreSQL-backed persistence for
// instant requests. Every state transition is a single conditional UPDATE
// against one row, so concurrent callers can never produce two winners.
type PostgresRequestRepository struct {
	pool db.Pool
}

// NewPostgresRequestRepository constructs a request repository backed by PostgreSQL.
func NewPostgresRequestRepository(pool db.Pool) *PostgresRequestRepository {
	return &PostgresRequestRepository{pool: pool}
}

const requestColumns = `
        id, student_id, subject_id, duration_minutes, status,
        accepted_by_tutor_id, accepted_at, meeting_url,
        tutor_joined_at, student_joined_at, created_at, updated_at`

// Create persists a new pending request. The meeting URL is already derived
// by the caller so a pending request is fully addressable from the start.
func (r *PostgresRequestRepository) Create(ctx context.Context, request models.InstantRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO instant_requests (id, student_id, subject_id, duration_minutes, status, meeting_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, request.ID, request.StudentID, request.SubjectID, request.DurationMinutes, request.Status, nullString(request.MeetingURL), request.CreatedAt, request.UpdatedAt)
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
		return fmt.Errorf("insert instant request: %w", err)
	}

	return nil
}

// Find fetches the authoritative record for one request.
func (r *PostgresRequestRepository) Find(ctx context.Context, requestID string) (models.InstantRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.InstantRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+requestColumns+`
        FROM instant_requests
        WHERE id = $1
    `, requestID)

	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.InstantRequest{}, ErrNotFound
		}
		return models.InstantRequest{}, fmt.Errorf("select instant request: %w", err)
	}

	return request, nil
}

// ListPending returns the open pool of requests tutors can still claim,
// oldest first so the longest-waiting student is surfaced at the top.
func (r *PostgresRequestRepository) ListPending(ctx context.Context) ([]models.InstantRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+requestColumns+`
        FROM instant_requests
        WHERE status = $1
        ORDER BY created_at ASC
        LIMIT 100
    `, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("query pending requests: %w", err)
	}
	defer rows.Close()

	var requests []models.InstantRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}

	return requests, nil
}

// Accept performs the first-accept-wins conditional transition: the row
// moves to accepted only if it is still pending. Losing callers receive
// ErrAlreadyResolved; an unknown id yields ErrNotFound.
func (r *PostgresRequestRepository) Accept(ctx context.Context, requestID, tutorID string, now time.Time) (models.InstantRequest, error) {
	return r.transition(ctx, requestID, `
        UPDATE instant_requests
        SET status = $2, accepted_by_tutor_id = $3, accepted_at = $4, updated_at = $4
        WHERE id = $1 AND status = $5
        RETURNING `+requestColumns,
		requestID, models.StatusAccepted, tutorID, now, models.StatusPending)
}

// Cancel resolves a still-pending request in the student's favour. A cancel
// racing an accept is decided by whichever conditional write lands first.
func (r *PostgresRequestRepository) Cancel(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error) {
	return r.transition(ctx, requestID, `
        UPDATE instant_requests
        SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4
        RETURNING `+requestColumns,
		requestID, models.StatusCancelled, now, models.StatusPending)
}

// Complete closes an accepted session on an explicit end-of-call signal.
func (r *PostgresRequestRepository) Complete(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error) {
	return r.transition(ctx, requestID, `
        UPDATE instant_requests
        SET status = $2, updated_at = $3
        WHERE id = $1 AND status = $4
        RETURNING `+requestColumns,
		requestID, models.StatusCompleted, now, models.StatusAccepted)
}

// MarkTutorJoined records the tutor entering the meeting room. The write is
// once-only and valid only while the session is accepted; repeating it is an
// idempotent success that returns the current row.
func (r *PostgresRequestRepository) MarkTutorJoined(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error) {
	return r.markJoined(ctx, requestID, "tutor_joined_at", now)
}

// MarkStudentJoined records the student entering the meeting room.
func (r *PostgresRequestRepository) MarkStudentJoined(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error) {
	return r.markJoined(ctx, requestID, "student_joined_at", now)
}

func (r *PostgresRequestRepository) markJoined(ctx context.Context, requestID, column string, now time.Time) (models.InstantRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.InstantRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of two fixed identifiers, never caller input.
	row := conn.QueryRow(ctx, `
        UPDATE instant_requests
        SET `+column+` = $2, updated_at = $2
        WHERE id = $1 AND status = $3 AND `+column+` IS NULL
        RETURNING `+requestColumns,
		requestID, now, models.StatusAccepted)

	request, err := scanRequest(row)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.InstantRequest{}, fmt.Errorf("mark %s: %w", column, err)
	}

	// No row updated: either unknown, already marked (idempotent success),
	// or no longer accepted.
	current, err := r.Find(ctx, requestID)
	if err != nil {
		return models.InstantRequest{}, err
	}
	joined := current.TutorJoinedAt
	if column == "student_joined_at" {
		joined = current.StudentJoinedAt
	}
	if joined != nil {
		return current, nil
	}
	return models.InstantRequest{}, ErrAlreadyResolved
}

// EnsureMeetingURL persists the derived meeting URL when the creation-time
// write never landed. Write-once: an existing value is left untouched.
func (r *PostgresRequestRepository) EnsureMeetingURL(ctx context.Context, requestID, url string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE instant_requests
        SET meeting_url = $2
        WHERE id = $1 AND meeting_url IS NULL
    `, requestID, url)
	if err != nil {
		return fmt.Errorf("persist meeting url: %w", err)
	}

	return nil
}

// ExpireStale sweeps accepted sessions past their time budget and pending
// requests nobody claimed within pendingTTL into the expired status. The
// sweep is hardening only: clients compute expiry locally from accepted_at.
func (r *PostgresRequestRepository) ExpireStale(ctx context.Context, now time.Time, pendingTTL time.Duration) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE instant_requests
        SET status = $1, updated_at = $2
        WHERE (status = $3 AND accepted_at + make_interval(mins => duration_minutes) <= $2)
           OR (status = $4 AND created_at <= $5)
    `, models.StatusExpired, now, models.StatusAccepted, models.StatusPending, now.Add(-pendingTTL))
	if err != nil {
		return 0, fmt.Errorf("expire stale requests: %w", err)
	}

	return tag.RowsAffected(), nil
}

// transition runs one conditional UPDATE and maps the zero-row case to
// ErrNotFound or ErrAlreadyResolved depending on whether the row exists.
func (r *PostgresRequestRepository) transition(ctx context.Context, requestID, query string, args ...any) (models.InstantRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.InstantRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, query, args...)

	request, err := scanRequest(row)
	if err == nil {
		return request, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.InstantRequest{}, fmt.Errorf("transition instant request: %w", err)
	}

	if _, err := r.Find(ctx, requestID); err != nil {
		return models.InstantRequest{}, err
	}
	return models.InstantRequest{}, ErrAlreadyResolved
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (models.InstantRequest, error) {
	var (
		request         models.InstantRequest
		tutorID         sql.NullString
		acceptedAt      sql.NullTime
		meetingURL      sql.NullString
		tutorJoinedAt   sql.NullTime
		studentJoinedAt sql.NullTime
	)

	if err := row.Scan(
		&request.ID, &request.StudentID, &request.SubjectID, &request.DurationMinutes, &request.Status,
		&tutorID, &acceptedAt, &meetingURL,
		&tutorJoinedAt, &studentJoinedAt, &request.CreatedAt, &request.UpdatedAt,
	); err != nil {
		return models.InstantRequest{}, err
	}

	request.AcceptedByTutorID = tutorID.String
	request.MeetingURL = meetingURL.String
	if acceptedAt.Valid {
		t := acceptedAt.Time.UTC()
		request.AcceptedAt = &t
	}
	if tutorJoinedAt.Valid {
		t := tutorJoinedAt.Time.UTC()
		request.TutorJoinedAt = &t
	}
	if studentJoinedAt.Valid {
		t := studentJoinedAt.Time.UTC()
		request.StudentJoinedAt = &t
	}

	return request, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
