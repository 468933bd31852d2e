package httpapi

import (
	"net/http"
	"time"

	"adstudio/internal/http/handlers"
	"adstudio/internal/infra"
	"adstudio/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter assembles the chi router with the service middleware stack.
func NewRouter(app *handlers.App, cfg *infra.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	// Form and result surface
	r.Get("/", app.Index)
	r.Get("/result", app.Result)
	r.Get("/result/download", app.ResultDownload)

	// Gallery
	r.Get("/gallery", app.Gallery)
	r.Get("/gallery/archive", app.GalleryArchive)
	r.Get("/gallery/{name}", app.GalleryImage)

	// Vendor-facing routes get the per-IP limiter to protect the API quota.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/generate", app.Generate)
		r.Post("/result/overlay", app.ApplyOverlay)
	})

	return r
}
