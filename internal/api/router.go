package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/engram-labs/engram/internal/cluster"
	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/safety"
	"github.com/engram-labs/engram/internal/search"
	"github.com/engram-labs/engram/internal/store"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	db *store.DB,
	svc *memory.Service,
	searchEngine *search.Engine,
	clusterEngine *cluster.Engine,
	scheduler *cluster.Scheduler,
	validator *safety.Validator,
	provider embedding.Provider,
	apiKey string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (runs on ALL routes including /health)
	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	// Handlers
	healthH := NewHealthHandler(db, provider)
	recordH := NewRecordHandler(svc, scheduler)
	searchH := NewSearchHandler(searchEngine)
	clusterH := NewClusterHandler(clusterEngine)
	validateH := NewValidateHandler(validator)
	scopeH := NewScopeHandler(svc)

	// Unauthenticated routes
	r.Get("/health", healthH.Health)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))

		r.Route("/records", func(r chi.Router) {
			r.Post("/", recordH.Store)
			r.Get("/{scope}", recordH.List)
			r.Get("/{scope}/{hash}", recordH.Get)
			r.Patch("/{scope}/{hash}", recordH.Update)
			r.Delete("/{scope}/{hash}", recordH.Delete)
		})

		r.Route("/search", func(r chi.Router) {
			r.Post("/", searchH.Search)
			r.Post("/similar", searchH.Similar)
			r.Post("/batch", searchH.Batch)
		})

		r.Route("/clusters", func(r chi.Router) {
			r.Post("/{scope}", clusterH.Rebuild)
			r.Get("/{scope}", clusterH.List)
		})

		r.Post("/validate", validateH.Validate)

		r.Route("/scopes", func(r chi.Router) {
			r.Get("/", scopeH.List)
			r.Delete("/{scope}", scopeH.Delete)
		})
	})

	return r
}
