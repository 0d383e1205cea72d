package handlers

import (
	"net/http"

	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Matching MatchingService
	Subjects SubjectStore
	Fabric   Fabric
	Identity identity.Resolver

	// CreateLimiter and AcceptLimiter guard the two write-heavy endpoints.
	CreateLimiter RateLimiter
	AcceptLimiter RateLimiter
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	subjects := SubjectHandler{Subjects: deps.Subjects, Identity: deps.Identity}
	requests := RequestHandler{
		Matching:      deps.Matching,
		Identity:      deps.Identity,
		CreateLimiter: deps.CreateLimiter,
		AcceptLimiter: deps.AcceptLimiter,
	}
	ratings := RatingHandler{Matching: deps.Matching, Identity: deps.Identity}
	stream := StreamHandler{Fabric: deps.Fabric, Identity: deps.Identity}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("GET /api/v1/subjects", subjects.List)
	mux.HandleFunc("POST /api/v1/requests", requests.Create)
	mux.HandleFunc("GET /api/v1/requests/pending", requests.Pending)
	mux.HandleFunc("GET /api/v1/requests/{id}", requests.Get)
	mux.HandleFunc("POST /api/v1/requests/{id}/cancel", requests.Cancel)
	mux.HandleFunc("POST /api/v1/requests/{id}/accept", requests.Accept)
	mux.HandleFunc("POST /api/v1/requests/{id}/join", requests.Join)
	mux.HandleFunc("POST /api/v1/requests/{id}/complete", requests.Complete)
	mux.HandleFunc("POST /api/v1/requests/{id}/rating", ratings.Submit)
	mux.HandleFunc("GET /api/v1/ws/pool", stream.Pool)
	mux.HandleFunc("GET /api/v1/ws/requests/{id}", stream.Request)
}
