package serverhttp

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	catHnd "partidas-service/internal/catalog/handler"
	"partidas-service/internal/config"
	matchHnd "partidas-service/internal/matching/handler"
	"partidas-service/internal/middleware"
	"partidas-service/server/http/handlers"
)

// Deps are the handlers the router mounts.
type Deps struct {
	Matching *matchHnd.Handler
	Catalog  *catHnd.Handler
}

func NewRouter(cfg config.Config, logger zerolog.Logger, d Deps) *chi.Mux {
	r := chi.NewRouter()

	// order matters: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(cfg.MaxUploadMB) * 1024 * 1024))

	r.Get("/health", handlers.Health)

	r.Post("/match", d.Matching.Match)
	r.Post("/similarity", d.Matching.Similarity)
	r.Post("/confirmations", d.Matching.Confirm)
	r.Get("/learning/stats", d.Matching.Stats)

	r.Route("/results", func(r chi.Router) {
		r.Post("/summary", d.Matching.Summary)
		r.Post("/export", d.Matching.Export)
		r.Post("/auto-validate", d.Matching.AutoValidate)
		r.Post("/confirm", d.Matching.ConfirmResult)
		r.Post("/link", d.Matching.LinkResult)
	})

	r.Route("/partidas", func(r chi.Router) {
		r.Get("/", d.Catalog.Search)
		r.Post("/", d.Catalog.Create)
		r.Post("/import", d.Catalog.Import)
		r.Put("/{id}", d.Catalog.Update)
		r.Delete("/{id}", d.Catalog.Delete)
	})

	return r
}
