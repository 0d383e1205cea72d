package handlers

import (
	"net/http"

	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
	"github.com/AdwelloTech/MathMentor-sub000/internal/logging"
)

// SubjectHandler exposes the read-only subject catalog.
type SubjectHandler struct {
	Subjects SubjectStore
	Identity identity.Resolver
}

// List handles GET /api/v1/subjects.
func (h SubjectHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if _, ok := authenticate(h.Identity, w, r, ""); !ok {
		return
	}

	subjects, err := h.Subjects.ListActive(ctx)
	if err != nil {
		logger.Error("list subjects failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list subjects"})
		return
	}

	views := make([]subjectView, 0, len(subjects))
	for _, subject := range subjects {
		views = append(views, subjectView{ID: subject.ID, DisplayName: subject.DisplayName})
	}

	respondJSON(ctx, w, http.StatusOK, subjectsResponse{Subjects: views})
}

type subjectsResponse struct {
	Subjects []subjectView `json:"subjects"`
}

type subjectView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
