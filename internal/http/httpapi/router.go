package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"studio/internal/http/handlers"
	"studio/internal/infra"
	"studio/internal/middleware"
)

type Options struct {
	Logger             infra.Logger
	CORSAllowedOrigins []string
	// RateLimitPerMin caps job creation per client IP; zero disables it.
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSAllowedOrigins),
	)

	limitCreate := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		r.Route("/jobs", func(r chi.Router) {
			r.With(limitCreate).Post("/", app.CreateJob)
			r.Get("/", app.ListJobs)
			r.Get("/{id}", app.GetJob)
			r.Get("/{id}/outputs.zip", app.JobOutputsArchive)
			r.Post("/{id}/cancel", app.CancelJob)
			r.With(limitCreate).Post("/{id}/clone", app.CloneJob)
		})

		r.Route("/assets", func(r chi.Router) {
			r.Post("/upload", app.UploadAsset)
			r.Get("/", app.ListAssets)
			r.Get("/{id}", app.GetAsset)
			r.Get("/{id}/content", app.AssetContent)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", app.ListModels)
			r.Post("/reload", app.ReloadModels)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", app.GetSettings)
			r.Put("/", app.PutSettings)
		})
	})

	return r
}
