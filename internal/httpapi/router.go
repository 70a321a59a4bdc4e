// Package httpapi exposes the renderer over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"slidecast/internal/httpapi/handlers"
	"slidecast/internal/httpkit"
	"slidecast/internal/pkg/logger"
	"slidecast/internal/pkg/middleware"
)

// DefaultRequestTimeout bounds every route except the render endpoints.
const DefaultRequestTimeout = 30 * time.Second

type Deps struct {
	Handlers       handlers.Deps
	AllowedOrigins []string
	RequestTimeout time.Duration
	Log            *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	if d.Handlers.Log == nil {
		d.Handlers.Log = log
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = DefaultRequestTimeout
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))

	h := handlers.New(d.Handlers)
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- RENDER ----
	// Bounded by the render timeout, not the request timeout.
	r.Post("/render-video", wrap(h.RenderVideo))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))

		r.Post("/render-video/plan", wrap(h.PlanVideo))

		// ---- HEALTH ----
		r.Get("/health", h.Health)

		// ---- ASSETS ----
		r.Post("/assets", wrap(h.PostAsset))
		r.Get("/assets/{assetId}", wrap(h.GetAsset))
		r.Get("/assets/{assetId}/content", wrap(h.StreamAsset))
		r.Delete("/assets/{assetId}", wrap(h.DeleteAsset))
	})

	return r
}
