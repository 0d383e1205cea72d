package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// ErrNoSnapshot indicates no resumable state is stored under the key.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Snapshot is the minimal durable state a participant needs to resume an
// in-flight session after a process restart.
type Snapshot struct {
	RequestID  string
	Status     models.RequestStatus
	MeetingURL string
	SubjectID  string
	AcceptedAt *time.Time
}

// SnapshotStore persists session snapshots under a fixed participant key.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	Save(ctx context.Context, key string, snap Snapshot) error
	Load(ctx context.Context, key string) (Snapshot, error)
	Clear(ctx context.Context, key string) error
}

// NewInMemorySnapshotStore returns a SnapshotStore backed by a map, for
// tests and single-process embedding.
func NewInMemorySnapshotStore() *InMemorySnapshotStore {
	return &InMemorySnapshotStore{snapshots: make(map[string]Snapshot)}
}

// InMemorySnapshotStore implements SnapshotStore without durability.
type InMemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// Save stores the snapshot under key.
func (s *InMemorySnapshotStore) Save(_ context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	s.snapshots[key] = snap
	s.mu.Unlock()
	return nil
}

// Load retrieves the snapshot stored under key.
func (s *InMemorySnapshotStore) Load(_ context.Context, key string) (Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[key]
	s.mu.RUnlock()
	if !ok {
		return Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

// Clear removes the snapshot stored under key.
func (s *InMemorySnapshotStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.snapshots, key)
	s.mu.Unlock()
	return nil
}
