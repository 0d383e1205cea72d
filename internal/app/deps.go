package app

import (
	"log/slog"
	"strings"
	"time"

	"github.com/AdwelloTech/MathMentor-sub000/internal/config"
	"github.com/AdwelloTech/MathMentor-sub000/internal/db"
	"github.com/AdwelloTech/MathMentor-sub000/internal/handlers"
	"github.com/AdwelloTech/MathMentor-sub000/internal/identity"
	"github.com/AdwelloTech/MathMentor-sub000/internal/matching"
	"github.com/AdwelloTech/MathMentor-sub000/internal/meeting"
	"github.com/AdwelloTech/MathMentor-sub000/internal/middleware"
	"github.com/AdwelloTech/MathMentor-sub000/internal/notify"
	"github.com/AdwelloTech/MathMentor-sub000/internal/repositories"
)

// dependencies groups the wired collaborators; the request repository is
// surfaced separately so the expiry sweeper can share it.
type dependencies struct {
	handlers handlers.Dependencies
	requests *repositories.PostgresRequestRepository
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(pool db.Pool, cfg config.Config, hub *notify.Hub, sinks []notify.Sink, logger *slog.Logger) dependencies {
	requests := repositories.NewPostgresRequestRepository(pool)
	bookings := repositories.NewPostgresBookingRepository(pool)
	ratings := repositories.NewPostgresRatingRepository(pool)
	subjects := repositories.NewPostgresSubjectRepository(pool)
	resolver := meeting.NewResolver(cfg.MeetingBaseURL)

	engine := matching.NewService(requests, bookings, ratings, subjects, resolver, logger, sinks...)

	return dependencies{
		handlers: handlers.Dependencies{
			Matching:      engine,
			Subjects:      subjects,
			Fabric:        hub,
			Identity:      buildIdentity(cfg),
			CreateLimiter: middleware.NewKeyRateLimiter(5, time.Minute, 3, 10*time.Minute),
			AcceptLimiter: middleware.NewKeyRateLimiter(30, time.Minute, 10, 10*time.Minute),
		},
		requests: requests,
	}
}

// buildIdentity selects the identity collaborator: trusted gateway headers
// in deployment, or a static token table for local development
// ("token:user-id:role" entries separated by commas).
func buildIdentity(cfg config.Config) identity.Resolver {
	if cfg.TrustGatewayHeaders {
		return identity.NewGatewayResolver()
	}

	tokens := make(map[string]identity.User)
	for _, entry := range strings.Split(cfg.IdentityTokens, ",") {
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 {
			continue
		}
		tokens[parts[0]] = identity.User{ID: parts[1], Role: identity.Role(parts[2])}
	}
	return identity.NewStaticResolver(tokens)
}
