package models

import "time"

// RequestStatus enumerates the lifecycle states of an instant request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusCancelled RequestStatus = "cancelled"
	StatusExpired   RequestStatus = "expired"
	StatusCompleted RequestStatus = "completed"
)

// SessionDuration is the fixed length of every instant session.
const SessionDuration = 15 * time.Minute

// DurationMinutes is SessionDuration expressed as the stored column value.
const DurationMinutes = 15

// Terminal reports whether no further matching transition is possible.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCancelled, StatusExpired, StatusCompleted:
		return true
	}
	return false
}

// InstantRequest is the authoritative record of one on-demand tutoring request.
type InstantRequest struct {
	ID                string
	StudentID         string
	SubjectID         string
	DurationMinutes   int
	Status            RequestStatus
	AcceptedByTutorID string
	AcceptedAt        *time.Time
	MeetingURL        string
	TutorJoinedAt     *time.Time
	StudentJoinedAt   *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ExpiresAt returns the instant the accepted session runs out, or the zero
// time while the request has not been accepted.
func (r InstantRequest) ExpiresAt() time.Time {
	if r.AcceptedAt == nil {
		return time.Time{}
	}
	return r.AcceptedAt.Add(time.Duration(r.DurationMinutes) * time.Minute)
}

// Expired reports whether an accepted session has run past its budget at now.
func (r InstantRequest) Expired(now time.Time) bool {
	if r.Status != StatusAccepted || r.AcceptedAt == nil {
		return false
	}
	return !now.Before(r.ExpiresAt())
}

// Joinable reports whether the student may enter the meeting room: the
// session must be accepted, not expired, and the tutor must already be in
// the room. Tutor presence is the canonical gate.
func (r InstantRequest) Joinable(now time.Time) bool {
	return r.Status == StatusAccepted && !r.Expired(now) && r.TutorJoinedAt != nil
}

// Booking is the best-effort audit record created after a successful match.
type Booking struct {
	ID         string
	StudentID  string
	TutorID    string
	StartAt    time.Time
	EndAt      time.Time
	MeetingURL string
	CreatedAt  time.Time
}

// Rating is the one-time post-session feedback tied to a completed request.
type Rating struct {
	ID        string
	RequestID string
	TutorID   string
	Rating    int
	Comment   string
	CreatedAt time.Time
}

// Subject is a read-only entry from the subject catalog collaborator.
type Subject struct {
	ID          string
	DisplayName string
	Active      bool
}
