package serverhttp

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"match-service/internal/config"
	matchHnd "match-service/internal/matching/handler"
	"match-service/internal/middleware"
	"match-service/server/http/handlers"
)

func NewRouter(cfg config.Config, logger zerolog.Logger, h *matchHnd.Handler, embedderState handlers.StateFunc) *chi.Mux {
	r := chi.NewRouter()

	// requestID first so panics and access logs carry the id
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.Get("/health", handlers.Health(embedderState))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/match", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
		r.Use(middleware.LimitBytes(int64(cfg.MaxUploadMB) << 20))
		r.Post("/rank", h.Rank)
		r.Post("/similar", h.Similar)
		r.Post("/explain", h.Explain)
		r.Post("/pairs", h.Pairs)
	})

	return r
}
