package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
	"github.com/AdwelloTech/MathMentor-sub000/internal/logging"
	"github.com/AdwelloTech/MathMentor-sub000/internal/matching"
	"github.com/AdwelloTech/MathMentor-sub000/internal/repositories"
)

// RatingHandler implements the one-time post-session feedback endpoint.
type RatingHandler struct {
	Matching MatchingService
	Identity identity.Resolver
}

// Submit handles POST /api/v1/requests/{id}/rating. Rating failures are the
// one error class surfaced to the user as retryable; nothing here affects
// the session lifecycle.
func (h RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := authenticate(h.Identity, w, r, identity.RoleStudent); !ok {
		return
	}

	var req submitRatingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid rating payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.TutorID = strings.TrimSpace(req.TutorID)
	if req.TutorID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "tutor id is required"})
		return
	}

	record, err := h.Matching.SubmitRating(ctx, r.PathValue("id"), req.TutorID, req.Rating, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrInvalidRating):
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "rating must be between 1 and 5"})
		case errors.Is(err, matching.ErrNotCompleted):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "session not completed"})
		case errors.Is(err, matching.ErrWrongTutor):
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "tutor did not serve this session"})
		case errors.Is(err, repositories.ErrConflict):
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "rating already submitted"})
		case errors.Is(err, repositories.ErrNotFound):
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
		default:
			logger.Error("submit rating failed", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to submit rating, try again"})
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, ratingResponse{
		Rating: ratingView{
			ID:        record.ID,
			RequestID: record.RequestID,
			TutorID:   record.TutorID,
			Rating:    record.Rating,
			Comment:   record.Comment,
			CreatedAt: record.CreatedAt,
		},
	})
}

type submitRatingRequest struct {
	TutorID string `json:"tutorId"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type ratingResponse struct {
	Rating ratingView `json:"rating"`
}

type ratingView struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	TutorID   string    `json:"tutorId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
