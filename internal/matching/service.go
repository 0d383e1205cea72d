package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
	"github.com/AdwelloTech/MathMentor-sub000/internal/repositories"
)

var (
	// ErrInactiveSubject indicates the requested subject is unknown or not bookable.
	ErrInactiveSubject = errors.New("subject not bookable")
	// ErrNotOwner indicates the caller does not own the request they tried to act on.
	ErrNotOwner = errors.New("request owned by another student")
	// ErrNotCompleted indicates a rating was submitted before the session completed.
	ErrNotCompleted = errors.New("session not completed")
	// ErrWrongTutor indicates the rated tutor is not the one matched to the request.
	ErrWrongTutor = errors.New("tutor did not serve this session")
	// ErrInvalidRating indicates the rating value is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// RequestStore is the persistence contract the engine needs. The conditional
// transitions (Accept, Cancel, Complete) are the only authority over who wins
// a race; everything the engine layers on top is advisory.
type RequestStore interface {
	Create(ctx context.Context, request models.InstantRequest) error
	Find(ctx context.Context, requestID string) (models.InstantRequest, error)
	ListPending(ctx context.Context) ([]models.InstantRequest, error)
	Accept(ctx context.Context, requestID, tutorID string, now time.Time) (models.InstantRequest, error)
	Cancel(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error)
	Complete(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error)
	MarkTutorJoined(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error)
	MarkStudentJoined(ctx context.Context, requestID string, now time.Time) (models.InstantRequest, error)
	EnsureMeetingURL(ctx context.Context, requestID, url string) error
}

// BookingStore records best-effort audit bookings.
type BookingStore interface {
	Create(ctx context.Context, booking models.Booking) error
}

// RatingStore records one-time post-session feedback.
type RatingStore interface {
	Create(ctx context.Context, rating models.Rating) error
}

// SubjectCatalog is the narrow view onto the subject collaborator.
type SubjectCatalog interface {
	Find(ctx context.Context, subjectID string) (models.Subject, error)
}

// URLResolver derives the deterministic meeting room address for a request.
type URLResolver interface {
	DeriveMeetingURL(requestID string) string
}

// Service orchestrates the instant-session lifecycle: creation, the
// first-accept-wins arbitration, join gating, completion and rating.
type Service struct {
	requests RequestStore
	bookings BookingStore
	ratings  RatingStore
	subjects SubjectCatalog
	resolver URLResolver
	sinks    []notify.Sink
	logger   *slog.Logger

	// NowFunc lets tests pin the clock; nil means time.Now.
	NowFunc func() time.Time
}

// NewService wires the engine with its collaborators. Sinks receive the
// created/accepted/cancelled events, best-effort.
func NewService(requests RequestStore, bookings BookingStore, ratings RatingStore, subjects SubjectCatalog, resolver URLResolver, logger *slog.Logger, sinks ...notify.Sink) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		requests: requests,
		bookings: bookings,
		ratings:  ratings,
		subjects: subjects,
		resolver: resolver,
		sinks:    sinks,
		logger:   logger,
	}
}

// Create registers a new pending request for the student. The meeting URL is
// derived and stored immediately so the pending request is fully addressable,
// and the pool is notified.
func (s *Service) Create(ctx context.Context, studentID, subjectID string) (models.InstantRequest, error) {
	if studentID == "" || subjectID == "" {
		return models.InstantRequest{}, errors.New("student id and subject id must be provided")
	}

	subject, err := s.subjects.Find(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.InstantRequest{}, ErrInactiveSubject
		}
		return models.InstantRequest{}, fmt.Errorf("verify subject: %w", err)
	}
	if !subject.Active {
		return models.InstantRequest{}, ErrInactiveSubject
	}

	now := s.now()
	request := models.InstantRequest{
		ID:              uuid.NewString(),
		StudentID:       studentID,
		SubjectID:       subjectID,
		DurationMinutes: models.DurationMinutes,
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	request.MeetingURL = s.resolver.DeriveMeetingURL(request.ID)

	if err := s.requests.Create(ctx, request); err != nil {
		return models.InstantRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.broadcast(notify.NewCreated(request))

	return request, nil
}

// Accept is the acceptance arbiter: a conditional transition that lets at
// most one tutor win the request. Losing callers see ErrAlreadyResolved.
// After the win the engine ensures the meeting URL is persisted, announces
// the match, and opportunistically writes the audit booking.
func (s *Service) Accept(ctx context.Context, requestID, tutorID string) (models.InstantRequest, error) {
	if tutorID == "" {
		return models.InstantRequest{}, errors.New("tutor id must be provided")
	}

	request, err := s.requests.Accept(ctx, requestID, tutorID, s.now())
	if err != nil {
		return models.InstantRequest{}, err
	}

	// The persisted URL is an optimization: the resolver would hand the
	// same value to anyone who asks, so a failed write is only logged.
	if request.MeetingURL == "" {
		request.MeetingURL = s.resolver.DeriveMeetingURL(request.ID)
		if err := s.requests.EnsureMeetingURL(ctx, request.ID, request.MeetingURL); err != nil {
			s.logger.Error("persist meeting url", "requestId", request.ID, "error", err)
		}
	}

	s.broadcast(notify.NewAccepted(request))
	s.recordBooking(ctx, request)

	return request, nil
}

// Cancel withdraws a still-pending request on the student's behalf. A cancel
// racing an accept is settled by whichever conditional write lands first.
func (s *Service) Cancel(ctx context.Context, requestID, studentID string) (models.InstantRequest, error) {
	current, err := s.requests.Find(ctx, requestID)
	if err != nil {
		return models.InstantRequest{}, err
	}
	if studentID != "" && current.StudentID != studentID {
		return models.InstantRequest{}, ErrNotOwner
	}

	request, err := s.requests.Cancel(ctx, requestID, s.now())
	if err != nil {
		return models.InstantRequest{}, err
	}

	s.broadcast(notify.NewCancelled(request.ID))

	return request, nil
}

// Complete closes an accepted session on an explicit end-of-call signal from
// either party.
func (s *Service) Complete(ctx context.Context, requestID string) (models.InstantRequest, error) {
	return s.requests.Complete(ctx, requestID, s.now())
}

// MarkTutorJoined records tutor presence; once set, the student's join
// affordance unlocks.
func (s *Service) MarkTutorJoined(ctx context.Context, requestID string) (models.InstantRequest, error) {
	return s.requests.MarkTutorJoined(ctx, requestID, s.now())
}

// MarkStudentJoined records student presence in the meeting room.
func (s *Service) MarkStudentJoined(ctx context.Context, requestID string) (models.InstantRequest, error) {
	return s.requests.MarkStudentJoined(ctx, requestID, s.now())
}

// Status returns the authoritative record; this is the read the
// reconciliation poller relies on.
func (s *Service) Status(ctx context.Context, requestID string) (models.InstantRequest, error) {
	return s.requests.Find(ctx, requestID)
}

// ListPending returns the claimable pool for tutor views.
func (s *Service) ListPending(ctx context.Context) ([]models.InstantRequest, error) {
	return s.requests.ListPending(ctx)
}

// SubmitRating records one-time feedback for a completed session. The first
// write wins; duplicates surface repositories.ErrConflict.
func (s *Service) SubmitRating(ctx context.Context, requestID, tutorID string, rating int, comment string) (models.Rating, error) {
	if rating < 1 || rating > 5 {
		return models.Rating{}, ErrInvalidRating
	}

	request, err := s.requests.Find(ctx, requestID)
	if err != nil {
		return models.Rating{}, err
	}
	if request.Status != models.StatusCompleted {
		return models.Rating{}, ErrNotCompleted
	}
	if request.AcceptedByTutorID != tutorID {
		return models.Rating{}, ErrWrongTutor
	}

	record := models.Rating{
		ID:        uuid.NewString(),
		RequestID: requestID,
		TutorID:   tutorID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	if err := s.ratings.Create(ctx, record); err != nil {
		return models.Rating{}, err
	}

	return record, nil
}

// broadcast fans an event to every sink. Transport failure is non-fatal:
// the poller independently re-establishes ground truth.
func (s *Service) broadcast(event notify.Event) {
	for _, sink := range s.sinks {
		if err := sink.Publish(event); err != nil {
			s.logger.Warn("publish event", "kind", event.Kind, "requestId", event.RequestID, "error", err)
		}
	}
}

// recordBooking writes the audit booking. Failures are swallowed: the
// booking is advisory and must never roll back or surface from an accept.
func (s *Service) recordBooking(ctx context.Context, request models.InstantRequest) {
	if s.bookings == nil || request.AcceptedAt == nil {
		return
	}

	booking := models.Booking{
		ID:         uuid.NewString(),
		StudentID:  request.StudentID,
		TutorID:    request.AcceptedByTutorID,
		StartAt:    *request.AcceptedAt,
		EndAt:      request.ExpiresAt(),
		MeetingURL: request.MeetingURL,
		CreatedAt:  s.now(),
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		s.logger.Error("record audit booking", "requestId", request.ID, "error", err)
	}
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}
