package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(hub.Shutdown)
	return hub
}

func sampleCreated(requestID string) Event {
	return NewCreated(models.InstantRequest{
		ID:        requestID,
		StudentID: "student-1",
		SubjectID: "algebra",
		CreatedAt: time.Date(2025, time.March, 3, 10, 0, 0, 0, time.UTC),
	})
}

func sampleAccepted(requestID string) Event {
	acceptedAt := time.Date(2025, time.March, 3, 10, 1, 0, 0, time.UTC)
	return NewAccepted(models.InstantRequest{
		ID:                requestID,
		AcceptedByTutorID: "tutor-1",
		MeetingURL:        "https://rooms.test/instant/" + requestID,
		AcceptedAt:        &acceptedAt,
	})
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestPoolSubscriberReceivesAllKinds(t *testing.T) {
	hub := startHub(t)

	sub, err := hub.SubscribePool()
	if err != nil {
		t.Fatalf("subscribe pool: %v", err)
	}
	defer sub.Cancel()

	if err := hub.Publish(sampleCreated("req-1")); err != nil {
		t.Fatalf("publish created: %v", err)
	}
	if err := hub.Publish(sampleAccepted("req-1")); err != nil {
		t.Fatalf("publish accepted: %v", err)
	}
	if err := hub.Publish(NewCancelled("req-2")); err != nil {
		t.Fatalf("publish cancelled: %v", err)
	}

	kinds := []EventKind{
		receive(t, sub).Kind,
		receive(t, sub).Kind,
		receive(t, sub).Kind,
	}
	want := []EventKind{EventCreated, EventAccepted, EventCancelled}
	for i, kind := range kinds {
		if kind != want[i] {
			t.Fatalf("event %d: got %s want %s", i, kind, want[i])
		}
	}
}

func TestRequestSubscriberFiltersByID(t *testing.T) {
	hub := startHub(t)

	sub, err := hub.SubscribeRequest("req-1")
	if err != nil {
		t.Fatalf("subscribe request: %v", err)
	}
	defer sub.Cancel()

	if err := hub.Publish(sampleAccepted("req-other")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := hub.Publish(sampleAccepted("req-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	event := receive(t, sub)
	if event.RequestID != "req-1" {
		t.Fatalf("received event for %s, subscribed to req-1", event.RequestID)
	}
}

func TestPublishRejectsInvalidEvent(t *testing.T) {
	hub := startHub(t)

	err := hub.Publish(Event{Kind: EventAccepted, RequestID: "req-1"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent got %v", err)
	}
	err = hub.Publish(Event{Kind: "resized", RequestID: "req-1"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent for unknown kind got %v", err)
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := startHub(t)

	sub, err := hub.SubscribeRequest("req-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	// Overfill the subscriber queue without draining it; publishes must
	// still return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*4; i++ {
			if err := hub.Publish(sampleAccepted("req-1")); err != nil {
				t.Errorf("publish %d: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestShutdownClosesSubscriptions(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}

	sub, err := hub.SubscribePool()
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Give the coordinating goroutine a chance to register the subscription.
	if err := hub.Publish(NewCancelled("req-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	receive(t, sub)

	hub.Shutdown()

	select {
	case _, ok := <-sub.C:
		if ok {
			// Buffered events may still drain; the channel must close after.
			for range sub.C {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription channel not closed after shutdown")
	}

	if err := hub.Publish(NewCancelled("req-2")); !errors.Is(err, ErrHubNotRunning) {
		t.Fatalf("expected ErrHubNotRunning after shutdown got %v", err)
	}
}

func TestSubscribeBeforeStartFails(t *testing.T) {
	hub := NewHub(nil)
	if _, err := hub.SubscribePool(); !errors.Is(err, ErrHubNotRunning) {
		t.Fatalf("expected ErrHubNotRunning got %v", err)
	}
	if err := hub.Publish(NewCancelled("req-1")); !errors.Is(err, ErrHubNotRunning) {
		t.Fatalf("expected ErrHubNotRunning got %v", err)
	}
}
