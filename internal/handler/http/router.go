package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearcart/promotion-engine/pkg/health"
	"github.com/clearcart/promotion-engine/pkg/middleware"
)

// RouterConfig carries the cross-cutting pieces the router mounts.
type RouterConfig struct {
	ServiceName string
	Logger      *slog.Logger
	Health      *health.Handler
	CORS        middleware.CORSConfig
}

// NewRouter assembles the HTTP routes with the standard middleware chain.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", cfg.Health.LivenessHandler())
	r.Get("/readyz", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)
			r.Get("/code/{code}", h.GetCampaignByCode)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetCampaign)
				r.Put("/", h.UpdateCampaign)
				r.Patch("/status", h.UpdateStatus)
				r.Delete("/", h.DeactivateCampaign)
			})
		})

		r.Route("/discounts", func(r chi.Router) {
			r.Post("/eligible", h.ListEligible)
			r.Post("/preview", h.PreviewDiscount)
			r.Post("/validate", h.ValidateCode)
			r.Post("/apply", h.ApplyDiscount)
		})
	})

	return r
}
