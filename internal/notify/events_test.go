package notify

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	now := time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		event Event
		valid bool
	}{
		{
			name:  "created with full payload",
			event: Event{Kind: EventCreated, RequestID: "req-1", StudentID: "s", SubjectID: "algebra", CreatedAt: &now},
			valid: true,
		},
		{
			name:  "created missing subject",
			event: Event{Kind: EventCreated, RequestID: "req-1", StudentID: "s", CreatedAt: &now},
			valid: false,
		},
		{
			name:  "accepted with full payload",
			event: Event{Kind: EventAccepted, RequestID: "req-1", TutorID: "t", MeetingURL: "https://rooms.test/r", AcceptedAt: &now},
			valid: true,
		},
		{
			name:  "accepted missing meeting url",
			event: Event{Kind: EventAccepted, RequestID: "req-1", TutorID: "t", AcceptedAt: &now},
			valid: false,
		},
		{
			name:  "cancelled needs only the id",
			event: Event{Kind: EventCancelled, RequestID: "req-1"},
			valid: true,
		},
		{
			name:  "missing request id",
			event: Event{Kind: EventCancelled},
			valid: false,
		},
		{
			name:  "unknown kind",
			event: Event{Kind: "archived", RequestID: "req-1"},
			valid: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}
