package handlers

import (
	"context"

	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
)

// MatchingService captures the engine operations the HTTP handlers expose.
type MatchingService interface {
	Create(ctx context.Context, studentID, subjectID string) (models.InstantRequest, error)
	Accept(ctx context.Context, requestID, tutorID string) (models.InstantRequest, error)
	Cancel(ctx context.Context, requestID, studentID string) (models.InstantRequest, error)
	Complete(ctx context.Context, requestID string) (models.InstantRequest, error)
	MarkTutorJoined(ctx context.Context, requestID string) (models.InstantRequest, error)
	MarkStudentJoined(ctx context.Context, requestID string) (models.InstantRequest, error)
	Status(ctx context.Context, requestID string) (models.InstantRequest, error)
	ListPending(ctx context.Context) ([]models.InstantRequest, error)
	SubmitRating(ctx context.Context, requestID, tutorID string, rating int, comment string) (models.Rating, error)
}

// SubjectStore captures the read-only subject catalog collaborator.
type SubjectStore interface {
	ListActive(ctx context.Context) ([]models.Subject, error)
}

// Fabric captures the subscription side of the notification hub.
type Fabric interface {
	SubscribePool() (*notify.Subscription, error)
	SubscribeRequest(requestID string) (*notify.Subscription, error)
}
