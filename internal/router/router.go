package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studyhub-backend/internal/handlers"
	"studyhub-backend/internal/middleware"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	JWTAuth      *middleware.JWTAuth
	Sessions     *handlers.StudySessionHandler
	Badges       *handlers.BadgeHandler
	Achievements *handlers.AchievementHandler
	QuizResults  *handlers.QuizResultHandler
	Preferences  *handlers.PreferencesHandler
	Tickets      *handlers.TicketHandler
	WebSocket    http.HandlerFunc
	Checks       map[string]HealthCheck
	FrontendURL  string
}

// New builds the HTTP API. ctx bounds background work such as the rate
// limiter's sweeper.
func New(ctx context.Context, d Deps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(d.FrontendURL))

	// Ticket rate limiter (30 req/min per user)
	ticketLimiter := middleware.NewRateLimiter(ctx, 30, time.Minute)

	r.Get("/health", healthHandler(d.Checks))

	r.Route("/api/v1", func(r chi.Router) {
		// The socket authenticates itself after the upgrade so it can close
		// with a policy-violation code.
		r.Get("/ws", d.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(d.JWTAuth.Middleware)

			r.With(ticketLimiter.Middleware).Post("/ws/ticket", d.Tickets.Issue)

			r.Route("/study-sessions", func(r chi.Router) {
				r.Get("/", d.Sessions.List)
				r.Get("/{id}", d.Sessions.Get)
			})

			r.Get("/badges", d.Badges.List)

			r.Route("/achievements", func(r chi.Router) {
				r.Get("/", d.Achievements.List)
				r.Post("/recompute", d.Achievements.Recompute)
			})

			r.Post("/quiz-results", d.QuizResults.Record)

			r.Route("/user", func(r chi.Router) {
				r.Get("/preferences", d.Preferences.Get)
				r.Put("/preferences", d.Preferences.Update)
			})
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]interface{}{"status": "ok"}
		services := map[string]string{}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				services[name] = "unavailable"
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
				continue
			}
			services[name] = "ok"
		}
		if len(services) > 0 {
			body["services"] = services
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
