package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"genstudio/internal/http/handlers"
	"genstudio/internal/infra"
	"genstudio/internal/infra/geoip"
	"genstudio/internal/middleware"
)

type Options struct {
	Logger          infra.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	Geo             geoip.CountryResolver
	// Metrics serves the Prometheus exposition. Nil leaves /metrics unmounted.
	Metrics http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	var lookup middleware.CountryLookup
	if opts.Geo != nil {
		lookup = opts.Geo.CountryCode
	}

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, lookup),
		middleware.Logger(opts.Logger),
	)

	r.Get("/v1/healthz", app.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/", app.CreateGeneration)
		r.Get("/current", app.CurrentGeneration)
		r.Delete("/current", app.CancelGeneration)
	})

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.ListHistory)
		r.Get("/{id}", app.GetHistory)
		r.Delete("/{id}", app.DeleteHistory)
		r.Get("/{id}/outputs/{index}/url", app.OutputURL)
		r.Get("/{id}/export", app.ExportHistory)
	})

	r.Get("/v1/files/*", app.ServeFile)

	return r
}
