package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	// MetricsPath serves h's metrics when non-empty.
	MetricsPath string
	// IngestLimiter guards the conversation POST route when non-nil.
	IngestLimiter *RateLimiter
}

// NewRouter creates a new router with all routes configured. Collection
// routes answer with and without a trailing slash.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(MetricsMiddleware(h.metrics))

	r.Get("/health", h.Health)
	if opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, h.metrics.Handler())
	}

	r.Route("/characters", func(r chi.Router) {
		r.Get("/", h.ListCharacters)
		r.Get("/{id}", h.GetCharacter)
	})

	r.Route("/lines", func(r chi.Router) {
		r.Get("/", h.ListLines)
		r.Get("/conv/{id}", h.GetConversation)
		r.Get("/{id}", h.GetLine)
	})

	r.Route("/movies/{movie_id}/conversations", func(r chi.Router) {
		if opts.IngestLimiter != nil {
			r.Use(opts.IngestLimiter.Middleware)
		}
		r.Post("/", h.CreateConversation)
	})

	return r
}
