package notify

import (
	"errors"
	"fmt"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

// EventKind discriminates the closed set of fabric events.
type EventKind string

const (
	// EventCreated announces a new pending request to the tutor pool.
	EventCreated EventKind = "created"
	// EventAccepted announces the winning tutor and the meeting URL, so
	// subscribers need not re-fetch the record.
	EventAccepted EventKind = "accepted"
	// EventCancelled announces that the student withdrew a pending request.
	EventCancelled EventKind = "cancelled"
)

// Event is the tagged union carried by the notification fabric. Exactly the
// fields required by the variant are populated; Validate enforces the shape
// at the subscription boundary. Delivery is best-effort and consumers must
// apply events idempotently.
type Event struct {
	Kind       EventKind  `json:"kind"`
	RequestID  string     `json:"requestId"`
	StudentID  string     `json:"studentId,omitempty"`
	SubjectID  string     `json:"subjectId,omitempty"`
	TutorID    string     `json:"tutorId,omitempty"`
	MeetingURL string     `json:"meetingUrl,omitempty"`
	CreatedAt  *time.Time `json:"createdAt,omitempty"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

// ErrInvalidEvent indicates an event failed variant validation.
var ErrInvalidEvent = errors.New("invalid event")

// NewCreated builds the pool announcement for a freshly created request.
func NewCreated(request models.InstantRequest) Event {
	createdAt := request.CreatedAt
	return Event{
		Kind:      EventCreated,
		RequestID: request.ID,
		StudentID: request.StudentID,
		SubjectID: request.SubjectID,
		CreatedAt: &createdAt,
	}
}

// NewAccepted builds the acceptance announcement for the owning student.
func NewAccepted(request models.InstantRequest) Event {
	return Event{
		Kind:       EventAccepted,
		RequestID:  request.ID,
		TutorID:    request.AcceptedByTutorID,
		MeetingURL: request.MeetingURL,
		AcceptedAt: request.AcceptedAt,
	}
}

// NewCancelled builds the withdrawal announcement for the tutor pool.
func NewCancelled(requestID string) Event {
	return Event{Kind: EventCancelled, RequestID: requestID}
}

// Validate checks the fixed payload shape of the variant.
func (e Event) Validate() error {
	if e.RequestID == "" {
		return fmt.Errorf("%w: missing request id", ErrInvalidEvent)
	}
	switch e.Kind {
	case EventCreated:
		if e.StudentID == "" || e.SubjectID == "" || e.CreatedAt == nil {
			return fmt.Errorf("%w: created event missing payload fields", ErrInvalidEvent)
		}
	case EventAccepted:
		if e.TutorID == "" || e.MeetingURL == "" || e.AcceptedAt == nil {
			return fmt.Errorf("%w: accepted event missing payload fields", ErrInvalidEvent)
		}
	case EventCancelled:
		// request id is the whole payload
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}
