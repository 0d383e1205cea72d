package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresRequestRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")

	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := repo.Create(ctx, request); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate id, got %v", err)
	}

	orphan := newTestRequest("no-such-subject")
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown subject, got %v", err)
	}

	fetched, err := repo.Find(ctx, request.ID)
	if err != nil {
		t.Fatalf("find request: %v", err)
	}
	if fetched.StudentID != request.StudentID || fetched.Status != models.StatusPending {
		t.Fatalf("unexpected request fetched: %+v", fetched)
	}
	if fetched.MeetingURL != request.MeetingURL {
		t.Fatalf("meeting url not persisted: %q", fetched.MeetingURL)
	}
	if fetched.DurationMinutes != models.DurationMinutes {
		t.Fatalf("expected %d minute budget, got %d", models.DurationMinutes, fetched.DurationMinutes)
	}

	if _, err := repo.Find(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestPostgresRequestRepository_ListPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	base := time.Now().UTC().Add(-time.Hour)

	newer := newTestRequest("algebra")
	newer.CreatedAt = base.Add(10 * time.Minute)
	newer.UpdatedAt = newer.CreatedAt
	older := newTestRequest("algebra")
	older.CreatedAt = base
	older.UpdatedAt = older.CreatedAt
	resolved := newTestRequest("algebra")
	resolved.CreatedAt = base.Add(5 * time.Minute)
	resolved.UpdatedAt = resolved.CreatedAt

	for _, request := range []models.InstantRequest{newer, older, resolved} {
		if err := repo.Create(ctx, request); err != nil {
			t.Fatalf("create request %s: %v", request.ID, err)
		}
	}
	if _, err := repo.Accept(ctx, resolved.ID, "tutor-1", time.Now().UTC()); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	pending, err := repo.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending requests, got %d", len(pending))
	}
	if pending[0].ID != older.ID || pending[1].ID != newer.ID {
		t.Fatalf("expected oldest first, got %s then %s", pending[0].ID, pending[1].ID)
	}
}

func TestPostgresRequestRepository_AcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	const tutors = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < tutors; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tutorID := fmt.Sprintf("tutor-%d", n)
			_, err := repo.Accept(ctx, request.ID, tutorID, time.Now().UTC())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, tutorID)
			case errors.Is(err, ErrAlreadyResolved):
				losers++
			default:
				t.Errorf("unexpected accept error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %d (%v)", len(winners), winners)
	}
	if losers != tutors-1 {
		t.Fatalf("expected %d losers, got %d", tutors-1, losers)
	}

	final, err := repo.Find(ctx, request.ID)
	if err != nil {
		t.Fatalf("find request: %v", err)
	}
	if final.Status != models.StatusAccepted || final.AcceptedByTutorID != winners[0] {
		t.Fatalf("row disagrees with winner: %+v", final)
	}
	if final.AcceptedAt == nil {
		t.Fatal("accepted_at not set")
	}
}

func TestPostgresRequestRepository_CancelOnlyPending(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	cancelled, err := repo.Cancel(ctx, request.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("cancel request: %v", err)
	}
	if cancelled.Status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	if _, err := repo.Accept(ctx, request.ID, "tutor-1", time.Now().UTC()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved accepting cancelled request, got %v", err)
	}
	if _, err := repo.Cancel(ctx, request.ID, time.Now().UTC()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved cancelling twice, got %v", err)
	}
	if _, err := repo.Cancel(ctx, uuid.NewString(), time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestPostgresRequestRepository_JoinMarkersWriteOnce(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if _, err := repo.MarkTutorJoined(ctx, request.ID, time.Now().UTC()); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved before acceptance, got %v", err)
	}

	if _, err := repo.Accept(ctx, request.ID, "tutor-1", time.Now().UTC()); err != nil {
		t.Fatalf("accept request: %v", err)
	}

	first := time.Now().UTC()
	joined, err := repo.MarkTutorJoined(ctx, request.ID, first)
	if err != nil {
		t.Fatalf("mark tutor joined: %v", err)
	}
	if joined.TutorJoinedAt == nil {
		t.Fatal("tutor_joined_at not set")
	}

	// The second mark is an idempotent success that keeps the original stamp.
	again, err := repo.MarkTutorJoined(ctx, request.ID, first.Add(time.Minute))
	if err != nil {
		t.Fatalf("repeat mark tutor joined: %v", err)
	}
	if !again.TutorJoinedAt.Equal(*joined.TutorJoinedAt) {
		t.Fatalf("tutor_joined_at changed from %v to %v", joined.TutorJoinedAt, again.TutorJoinedAt)
	}

	if _, err := repo.MarkStudentJoined(ctx, request.ID, time.Now().UTC()); err != nil {
		t.Fatalf("mark student joined: %v", err)
	}
	if _, err := repo.MarkTutorJoined(ctx, uuid.NewString(), time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestPostgresRequestRepository_EnsureMeetingURLWriteOnce(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")
	request.MeetingURL = ""
	if err := repo.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := repo.EnsureMeetingURL(ctx, request.ID, "https://rooms.test/instant/"+request.ID); err != nil {
		t.Fatalf("ensure meeting url: %v", err)
	}
	if err := repo.EnsureMeetingURL(ctx, request.ID, "https://rooms.test/other"); err != nil {
		t.Fatalf("repeat ensure meeting url: %v", err)
	}

	fetched, err := repo.Find(ctx, request.ID)
	if err != nil {
		t.Fatalf("find request: %v", err)
	}
	if fetched.MeetingURL != "https://rooms.test/instant/"+request.ID {
		t.Fatalf("meeting url overwritten: %q", fetched.MeetingURL)
	}
}

func TestPostgresRequestRepository_ExpireStale(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	repo := NewPostgresRequestRepository(testPool)
	now := time.Now().UTC()

	// Accepted long past its budget.
	overrun := newTestRequest("algebra")
	if err := repo.Create(ctx, overrun); err != nil {
		t.Fatalf("create overrun request: %v", err)
	}
	if _, err := repo.Accept(ctx, overrun.ID, "tutor-1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("accept overrun request: %v", err)
	}

	// Accepted still inside its budget.
	live := newTestRequest("algebra")
	if err := repo.Create(ctx, live); err != nil {
		t.Fatalf("create live request: %v", err)
	}
	if _, err := repo.Accept(ctx, live.ID, "tutor-2", now.Add(-time.Minute)); err != nil {
		t.Fatalf("accept live request: %v", err)
	}

	// Pending nobody claimed within the TTL.
	stale := newTestRequest("algebra")
	stale.CreatedAt = now.Add(-time.Hour)
	stale.UpdatedAt = stale.CreatedAt
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("create stale request: %v", err)
	}

	// Fresh pending request.
	fresh := newTestRequest("algebra")
	if err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh request: %v", err)
	}

	expired, err := repo.ExpireStale(ctx, now, 10*time.Minute)
	if err != nil {
		t.Fatalf("expire stale: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired rows, got %d", expired)
	}

	for id, want := range map[string]models.RequestStatus{
		overrun.ID: models.StatusExpired,
		live.ID:    models.StatusAccepted,
		stale.ID:   models.StatusExpired,
		fresh.ID:   models.StatusPending,
	} {
		fetched, err := repo.Find(ctx, id)
		if err != nil {
			t.Fatalf("find %s: %v", id, err)
		}
		if fetched.Status != want {
			t.Fatalf("request %s: expected %s, got %s", id, want, fetched.Status)
		}
	}
}

func TestPostgresRatingRepository_OneRatingPerRequest(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)
	createTestSubject(t, "algebra")

	requests := NewPostgresRequestRepository(testPool)
	request := newTestRequest("algebra")
	if err := requests.Create(ctx, request); err != nil {
		t.Fatalf("create request: %v", err)
	}

	repo := NewPostgresRatingRepository(testPool)
	rating := models.Rating{
		ID:        uuid.NewString(),
		RequestID: request.ID,
		TutorID:   "tutor-1",
		Rating:    5,
		Comment:   "patient and clear",
		CreatedAt: time.Now().UTC(),
	}

	if err := repo.Create(ctx, rating); err != nil {
		t.Fatalf("create rating: %v", err)
	}

	dup := rating
	dup.ID = uuid.NewString()
	dup.Rating = 1
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second rating, got %v", err)
	}

	orphan := rating
	orphan.ID = uuid.NewString()
	orphan.RequestID = uuid.NewString()
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown request, got %v", err)
	}

	fetched, err := repo.FindByRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("find rating: %v", err)
	}
	if fetched.Rating != 5 || fetched.Comment != rating.Comment {
		t.Fatalf("unexpected rating fetched: %+v", fetched)
	}

	if _, err := repo.FindByRequest(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unrated request, got %v", err)
	}
}

func TestPostgresSubjectRepository_ListActiveAndFind(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	_, err = conn.Exec(ctx, `
        INSERT INTO subjects (id, display_name, active) VALUES
            ('algebra', 'Algebra', TRUE),
            ('geometry', 'Geometry', TRUE),
            ('trigonometry', 'Trigonometry', FALSE)
    `)
	conn.Release()
	if err != nil {
		t.Fatalf("seed subjects: %v", err)
	}

	repo := NewPostgresSubjectRepository(testPool)

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active subjects: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active subjects, got %d", len(active))
	}
	for _, subject := range active {
		if !subject.Active {
			t.Fatalf("inactive subject in active list: %+v", subject)
		}
	}

	retired, err := repo.Find(ctx, "trigonometry")
	if err != nil {
		t.Fatalf("find retired subject: %v", err)
	}
	if retired.Active {
		t.Fatal("expected trigonometry to be inactive")
	}

	if _, err := repo.Find(ctx, "philosophy"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown subject, got %v", err)
	}
}

func TestPostgresBookingRepository_Create(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresBookingRepository(testPool)
	start := time.Now().UTC()
	booking := models.Booking{
		ID:         uuid.NewString(),
		StudentID:  "student-1",
		TutorID:    "tutor-1",
		StartAt:    start,
		EndAt:      start.Add(models.SessionDuration),
		MeetingURL: "https://rooms.test/instant/req-1",
		CreatedAt:  start,
	}

	if err := repo.Create(ctx, booking); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if err := repo.Create(ctx, booking); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate booking id, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE session_ratings, bookings, instant_requests, subjects CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func createTestSubject(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        INSERT INTO subjects (id, display_name, active) VALUES ($1, $2, TRUE)
    `, id, id); err != nil {
		t.Fatalf("create test subject: %v", err)
	}
}

func newTestRequest(subjectID string) models.InstantRequest {
	now := time.Now().UTC()
	id := uuid.NewString()
	return models.InstantRequest{
		ID:              id,
		StudentID:       uuid.NewString(),
		SubjectID:       subjectID,
		DurationMinutes: models.DurationMinutes,
		Status:          models.StatusPending,
		MeetingURL:      "https://rooms.test/instant/" + id,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
