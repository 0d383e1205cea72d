package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// SQLiteSnapshotStore is the durable SnapshotStore used by embedded clients:
// a single-file database that survives process restarts.
type SQLiteSnapshotStore struct {
	db *sql.DB
}

// NewSQLiteSnapshotStore opens (creating if needed) the snapshot database at path.
func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}

	_, err = db.Exec(`
        CREATE TABLE IF NOT EXISTS session_snapshots (
            key         TEXT PRIMARY KEY,
            request_id  TEXT NOT NULL,
            status      TEXT NOT NULL,
            meeting_url TEXT NOT NULL DEFAULT '',
            subject_id  TEXT NOT NULL DEFAULT '',
            accepted_at TIMESTAMP,
            updated_at  TIMESTAMP NOT NULL
        )
    `)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}

	return &SQLiteSnapshotStore{db: db}, nil
}

// Save upserts the snapshot stored under key.
func (s *SQLiteSnapshotStore) Save(ctx context.Context, key string, snap Snapshot) error {
	var acceptedAt sql.NullTime
	if snap.AcceptedAt != nil {
		acceptedAt = sql.NullTime{Valid: true, Time: snap.AcceptedAt.UTC()}
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO session_snapshots (key, request_id, status, meeting_url, subject_id, accepted_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            request_id = excluded.request_id,
            status = excluded.status,
            meeting_url = excluded.meeting_url,
            subject_id = excluded.subject_id,
            accepted_at = excluded.accepted_at,
            updated_at = excluded.updated_at
    `, key, snap.RequestID, string(snap.Status), snap.MeetingURL, snap.SubjectID, acceptedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}

// Load retrieves the snapshot stored under key.
func (s *SQLiteSnapshotStore) Load(ctx context.Context, key string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT request_id, status, meeting_url, subject_id, accepted_at
        FROM session_snapshots
        WHERE key = ?
    `, key)

	var (
		snap       Snapshot
		status     string
		acceptedAt sql.NullTime
	)
	if err := row.Scan(&snap.RequestID, &status, &snap.MeetingURL, &snap.SubjectID, &acceptedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap.Status = models.RequestStatus(status)
	if acceptedAt.Valid {
		t := acceptedAt.Time.UTC()
		snap.AcceptedAt = &t
	}

	return snap, nil
}

// Clear removes the snapshot stored under key.
func (s *SQLiteSnapshotStore) Clear(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteSnapshotStore) Close() error {
	return s.db.Close()
}

var _ SnapshotStore = (*SQLiteSnapshotStore)(nil)
var _ SnapshotStore = (*InMemorySnapshotStore)(nil)
