package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
)

// State is the client-local view of one participant's session.
type State string

const (
	StateIdle      State = "idle"
	StateWaiting   State = "waiting"
	StateAccepted  State = "accepted"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
	StateCompleted State = "completed"
)

// Terminal reports whether only an explicit reset can leave the state.
func (s State) Terminal() bool {
	switch s {
	case StateCancelled, StateExpired, StateCompleted:
		return true
	}
	return false
}

// rank orders states along the monotonic lifecycle: waiting < accepted <
// terminal. Apply refuses to move backwards, which is what makes duplicate
// or out-of-order delivery a safe no-op.
func rank(s State) int {
	switch s {
	case StateIdle:
		return 0
	case StateWaiting:
		return 1
	case StateAccepted:
		return 2
	default:
		return 3
	}
}

// ErrNotResumable indicates an operation that is invalid in the current state.
var ErrNotResumable = errors.New("invalid in current session state")

// Machine is the per-participant session state machine. Both the push
// consumer and the reconciliation poller feed it through the same Apply
// merge, and every transition persists a snapshot so the session can be
// resumed after a restart.
type Machine struct {
	key    string
	store  SnapshotStore
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	snap        Snapshot
	tutorJoined bool

	// NowFunc lets tests pin the clock; nil means time.Now.
	NowFunc func() time.Time
}

// NewMachine constructs an idle machine persisting under the fixed local key.
func NewMachine(key string, store SnapshotStore, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{key: key, store: store, logger: logger, state: StateIdle}
}

// Restore loads the persisted snapshot and resumes the matching state. An
// accepted session is re-checked against the wall clock first so a stale
// snapshot is never presented as live; terminal snapshots are discarded.
func (m *Machine) Restore(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, err := m.store.Load(ctx, m.key)
	if err != nil {
		if errors.Is(err, ErrNoSnapshot) {
			m.state = StateIdle
			return m.state, nil
		}
		return m.state, fmt.Errorf("restore session: %w", err)
	}

	switch snap.Status {
	case models.StatusPending:
		m.state = StateWaiting
		m.snap = snap
	case models.StatusAccepted:
		if snap.AcceptedAt != nil && !m.now().Before(snap.AcceptedAt.Add(models.SessionDuration)) {
			m.state = StateExpired
			m.snap = snap
			m.clearLocked(ctx)
			return m.state, nil
		}
		m.state = StateAccepted
		m.snap = snap
	default:
		// Terminal snapshots should have been cleared on transition;
		// drop whatever is left over.
		m.state = StateIdle
		m.clearLocked(ctx)
	}

	return m.state, nil
}

// Begin moves idle → waiting when the student's request has been created.
func (m *Machine) Begin(ctx context.Context, request models.InstantRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return ErrNotResumable
	}

	m.state = StateWaiting
	m.snap = Snapshot{
		RequestID:  request.ID,
		Status:     models.StatusPending,
		MeetingURL: request.MeetingURL,
		SubjectID:  request.SubjectID,
	}
	m.persistLocked(ctx)
	return nil
}

// Apply merges an authoritative record into the machine. It is the single
// reconciliation function shared by the push handler and the poller:
// idempotent, and monotonic with respect to waiting < accepted < terminal.
func (m *Machine) Apply(ctx context.Context, request models.InstantRequest) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.snap.RequestID != "" && m.snap.RequestID != request.ID {
		return m.state
	}

	implied := m.impliedState(request.Status, request.AcceptedAt)

	// cancelled is only reachable from pending; a cancel observed after
	// acceptance is stale and ignored.
	if implied == StateCancelled && m.state != StateWaiting && m.state != StateIdle {
		return m.state
	}
	if rank(implied) < rank(m.state) {
		return m.state
	}

	if request.TutorJoinedAt != nil {
		m.tutorJoined = true
	}
	if m.snap.MeetingURL == "" && request.MeetingURL != "" {
		m.snap.MeetingURL = request.MeetingURL
	}
	if m.snap.AcceptedAt == nil && request.AcceptedAt != nil {
		m.snap.AcceptedAt = request.AcceptedAt
	}
	if m.snap.RequestID == "" {
		m.snap.RequestID = request.ID
		m.snap.SubjectID = request.SubjectID
	}

	if implied == m.state {
		m.persistLocked(ctx)
		return m.state
	}

	m.state = implied
	m.snap.Status = statusFor(implied)
	if m.state.Terminal() {
		m.clearLocked(ctx)
	} else {
		m.persistLocked(ctx)
	}
	return m.state
}

// ApplyEvent merges a fabric event. Events for other requests and unknown
// shapes are no-ops; the poller covers anything the push channel loses.
func (m *Machine) ApplyEvent(ctx context.Context, event notify.Event) State {
	if err := event.Validate(); err != nil {
		m.logger.Warn("discarding invalid event", "error", err)
		return m.State()
	}

	m.mu.Lock()
	requestID := m.snap.RequestID
	m.mu.Unlock()
	if requestID == "" || event.RequestID != requestID {
		return m.State()
	}

	switch event.Kind {
	case notify.EventAccepted:
		return m.Apply(ctx, models.InstantRequest{
			ID:                event.RequestID,
			Status:            models.StatusAccepted,
			AcceptedByTutorID: event.TutorID,
			AcceptedAt:        event.AcceptedAt,
			MeetingURL:        event.MeetingURL,
			DurationMinutes:   models.DurationMinutes,
		})
	case notify.EventCancelled:
		return m.Apply(ctx, models.InstantRequest{
			ID:     event.RequestID,
			Status: models.StatusCancelled,
		})
	default:
		return m.State()
	}
}

// ApplyNotFound handles a reconciliation read that came back NotFound:
// observers treat a vanished record as cancelled while still waiting.
func (m *Machine) ApplyNotFound(ctx context.Context) State {
	m.mu.Lock()
	requestID := m.snap.RequestID
	m.mu.Unlock()

	return m.Apply(ctx, models.InstantRequest{
		ID:     requestID,
		Status: models.StatusCancelled,
	})
}

// ExpireIfDue moves accepted → expired once the session budget has elapsed.
// The deadline is anchored on the persisted acceptance timestamp, never on
// accumulated local ticks, so it stays correct across sleep and reload.
func (m *Machine) ExpireIfDue(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAccepted || m.snap.AcceptedAt == nil {
		return m.state
	}
	if m.now().Before(m.snap.AcceptedAt.Add(models.SessionDuration)) {
		return m.state
	}

	m.state = StateExpired
	m.snap.Status = models.StatusExpired
	m.clearLocked(ctx)
	return m.state
}

// Complete moves accepted → completed on an explicit end-of-session signal.
func (m *Machine) Complete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAccepted {
		return ErrNotResumable
	}

	m.state = StateCompleted
	m.snap.Status = models.StatusCompleted
	m.clearLocked(ctx)
	return nil
}

// Reset leaves a terminal state back to idle; the only way out of one.
func (m *Machine) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.Terminal() {
		return ErrNotResumable
	}

	m.state = StateIdle
	m.snap = Snapshot{}
	m.tutorJoined = false
	m.clearLocked(ctx)
	return nil
}

// State returns the current state. Accepted sessions past their budget are
// still reported as accepted until ExpireIfDue or Apply observes the fact.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot returns a copy of the resumable state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// TimeLeft reports the remaining session budget, zero once expired or when
// no acceptance has been observed.
func (m *Machine) TimeLeft() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAccepted || m.snap.AcceptedAt == nil {
		return 0
	}
	left := m.snap.AcceptedAt.Add(models.SessionDuration).Sub(m.now())
	if left < 0 {
		return 0
	}
	return left
}

// CanJoin reports whether the student's join affordance is unlocked: the
// session is live and the tutor has been observed in the room.
func (m *Machine) CanJoin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateAccepted || !m.tutorJoined {
		return false
	}
	if m.snap.AcceptedAt != nil && !m.now().Before(m.snap.AcceptedAt.Add(models.SessionDuration)) {
		return false
	}
	return true
}

func (m *Machine) impliedState(status models.RequestStatus, acceptedAt *time.Time) State {
	switch status {
	case models.StatusPending:
		return StateWaiting
	case models.StatusAccepted:
		if acceptedAt != nil && !m.now().Before(acceptedAt.Add(models.SessionDuration)) {
			return StateExpired
		}
		return StateAccepted
	case models.StatusCancelled:
		return StateCancelled
	case models.StatusExpired:
		return StateExpired
	case models.StatusCompleted:
		return StateCompleted
	default:
		return m.state
	}
}

func (m *Machine) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx, m.key, m.snap); err != nil {
		m.logger.Error("persist session snapshot", "key", m.key, "error", err)
	}
}

func (m *Machine) clearLocked(ctx context.Context) {
	if err := m.store.Clear(ctx, m.key); err != nil {
		m.logger.Error("clear session snapshot", "key", m.key, "error", err)
	}
}

func (m *Machine) now() time.Time {
	if m.NowFunc != nil {
		return m.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func statusFor(s State) models.RequestStatus {
	switch s {
	case StateWaiting:
		return models.StatusPending
	case StateAccepted:
		return models.StatusAccepted
	case StateCancelled:
		return models.StatusCancelled
	case StateExpired:
		return models.StatusExpired
	case StateCompleted:
		return models.StatusCompleted
	default:
		return models.StatusPending
	}
}
