package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Simplereally/bloomstudio-sub000/internal/http/handlers"
	"github.com/Simplereally/bloomstudio-sub000/internal/infra"
	"github.com/Simplereally/bloomstudio-sub000/internal/middleware"
)

func NewRouter(cfg *infra.Config, logger infra.Logger, app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	// Health stays open; everything else under /v1 requires a bearer token.
	r.Get("/v1/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Use(middleware.AuthJWT(cfg.JWTSecret))

		r.Route("/batches", func(r chi.Router) {
			r.Post("/", app.StartBatch)
			r.Get("/", app.ListBatches)
			r.Get("/{id}", app.GetBatch)
			r.Post("/{id}/pause", app.PauseBatch)
			r.Post("/{id}/resume", app.ResumeBatch)
			r.Post("/{id}/cancel", app.CancelBatch)
			r.Get("/{id}/events", app.BatchEvents)
			r.Get("/{id}/assets", app.BatchAssets)
			r.Get("/{id}/zip", app.BatchZip)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", app.ListAssets)
			r.Get("/{id}/download", app.DownloadAsset)
		})

		r.Get("/models", app.ListModels)
		r.Post("/dimensions/resolve", app.ResolveDimensions)
	})

	return r
}
