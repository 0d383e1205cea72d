package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
	"github.com/AdwelloTech/MathMentor-sub000/internal/logging"
	"github.com/AdwelloTech/MathMentor-sub000/internal/matching"
	"github.com/AdwelloTech/MathMentor-sub000/internal/models"
	"github.com/AdwelloTech/MathMentor-sub000/internal/repositories"
)

// RequestHandler implements the instant-request lifecycle endpoints.
type RequestHandler struct {
	Matching      MatchingService
	Identity      identity.Resolver
	CreateLimiter RateLimiter
	AcceptLimiter RateLimiter
	NowFunc       func() time.Time
}

// Create handles POST /api/v1/requests.
func (h RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := h.authenticate(w, r, identity.RoleStudent)
	if !ok {
		return
	}

	if !allowRequest(h.CreateLimiter, r, "create") {
		logger.Warn("request creation rate limited", "studentId", user.ID)
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid create payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.SubjectID = strings.TrimSpace(req.SubjectID)
	if req.SubjectID == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "subject id is required"})
		return
	}

	record, err := h.Matching.Create(ctx, user.ID, req.SubjectID)
	if err != nil {
		if errors.Is(err, matching.ErrInactiveSubject) {
			logger.Warn("create with unbookable subject", "subjectId", req.SubjectID)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "subject not bookable"})
			return
		}
		logger.Error("create request failed", "error", err, "studentId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create request"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, requestResponse{Request: toRequestView(record, h.now())})
}

// Pending handles GET /api/v1/requests/pending, the tutor pool view.
func (h RequestHandler) Pending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := h.authenticate(w, r, identity.RoleTutor); !ok {
		return
	}

	records, err := h.Matching.ListPending(ctx)
	if err != nil {
		logger.Error("list pending requests failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list requests"})
		return
	}

	now := h.now()
	views := make([]requestView, 0, len(records))
	for _, record := range records {
		views = append(views, toRequestView(record, now))
	}

	respondJSON(ctx, w, http.StatusOK, listResponse{Requests: views})
}

// Get handles GET /api/v1/requests/{id}, the reconciliation read every
// client polls as a backstop to the push channel.
func (h RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.authenticate(w, r, ""); !ok {
		return
	}

	record, err := h.Matching.Status(ctx, r.PathValue("id"))
	if err != nil {
		h.respondLifecycleError(ctx, w, err, "fetch request")
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestResponse{Request: toRequestView(record, h.now())})
}

// Cancel handles POST /api/v1/requests/{id}/cancel.
func (h RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r, identity.RoleStudent)
	if !ok {
		return
	}

	record, err := h.Matching.Cancel(ctx, r.PathValue("id"), user.ID)
	if err != nil {
		h.respondLifecycleError(ctx, w, err, "cancel request")
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestResponse{Request: toRequestView(record, h.now())})
}

// Accept handles POST /api/v1/requests/{id}/accept, the race every tutor
// runs. Exactly one caller wins; the rest receive 409.
func (h RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	user, ok := h.authenticate(w, r, identity.RoleTutor)
	if !ok {
		return
	}

	if !allowRequest(h.AcceptLimiter, r, "accept") {
		logger.Warn("accept rate limited", "tutorId", user.ID)
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	record, err := h.Matching.Accept(ctx, r.PathValue("id"), user.ID)
	if err != nil {
		h.respondLifecycleError(ctx, w, err, "accept request")
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestResponse{Request: toRequestView(record, h.now())})
}

// Join handles POST /api/v1/requests/{id}/join, recording room presence for
// the calling side.
func (h RequestHandler) Join(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := h.authenticate(w, r, "")
	if !ok {
		return
	}

	var (
		record models.InstantRequest
		err    error
	)
	switch user.Role {
	case identity.RoleTutor:
		record, err = h.Matching.MarkTutorJoined(ctx, r.PathValue("id"))
	default:
		record, err = h.Matching.MarkStudentJoined(ctx, r.PathValue("id"))
	}
	if err != nil {
		h.respondLifecycleError(ctx, w, err, "mark joined")
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestResponse{Request: toRequestView(record, h.now())})
}

// Complete handles POST /api/v1/requests/{id}/complete.
func (h RequestHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := h.authenticate(w, r, ""); !ok {
		return
	}

	record, err := h.Matching.Complete(ctx, r.PathValue("id"))
	if err != nil {
		h.respondLifecycleError(ctx, w, err, "complete request")
		return
	}

	respondJSON(ctx, w, http.StatusOK, requestResponse{Request: toRequestView(record, h.now())})
}

// authenticate resolves the caller and optionally enforces a role. It writes
// the error response itself when resolution fails.
func (h RequestHandler) authenticate(w http.ResponseWriter, r *http.Request, role identity.Role) (identity.User, bool) {
	return authenticate(h.Identity, w, r, role)
}

func (h RequestHandler) respondLifecycleError(ctx context.Context, w http.ResponseWriter, err error, action string) {
	logger := logging.FromContext(ctx)

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "request not found"})
	case errors.Is(err, repositories.ErrAlreadyResolved):
		respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "request no longer available"})
	case errors.Is(err, matching.ErrNotOwner):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "not your request"})
	default:
		logger.Error(action+" failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (h RequestHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc().UTC()
	}
	return time.Now().UTC()
}

type createRequest struct {
	SubjectID string `json:"subjectId"`
}

type requestResponse struct {
	Request requestView `json:"request"`
}

type listResponse struct {
	Requests []requestView `json:"requests"`
}

// requestView is the wire shape of an instant request. Joinable is computed
// server-side so clients need not duplicate the tutor-presence gate.
type requestView struct {
	ID                string     `json:"id"`
	StudentID         string     `json:"studentId"`
	SubjectID         string     `json:"subjectId"`
	DurationMinutes   int        `json:"durationMinutes"`
	Status            string     `json:"status"`
	AcceptedByTutorID string     `json:"acceptedByTutorId,omitempty"`
	AcceptedAt        *time.Time `json:"acceptedAt,omitempty"`
	MeetingURL        string     `json:"meetingUrl,omitempty"`
	TutorJoinedAt     *time.Time `json:"tutorJoinedAt,omitempty"`
	StudentJoinedAt   *time.Time `json:"studentJoinedAt,omitempty"`
	Joinable          bool       `json:"joinable"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func toRequestView(record models.InstantRequest, now time.Time) requestView {
	return requestView{
		ID:                record.ID,
		StudentID:         record.StudentID,
		SubjectID:         record.SubjectID,
		DurationMinutes:   record.DurationMinutes,
		Status:            string(record.Status),
		AcceptedByTutorID: record.AcceptedByTutorID,
		AcceptedAt:        record.AcceptedAt,
		MeetingURL:        record.MeetingURL,
		TutorJoinedAt:     record.TutorJoinedAt,
		StudentJoinedAt:   record.StudentJoinedAt,
		Joinable:          record.Joinable(now),
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func authenticate(resolver identity.Resolver, w http.ResponseWriter, r *http.Request, role identity.Role) (identity.User, bool) {
	ctx := r.Context()

	if resolver == nil {
		logging.FromContext(ctx).Error("identity resolver unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "identity service unavailable"})
		return identity.User{}, false
	}

	user, err := resolver.Resolve(r)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return identity.User{}, false
	}

	if role != "" && user.Role != role {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "insufficient role"})
		return identity.User{}, false
	}

	return user, true
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
