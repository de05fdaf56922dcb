package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// NewRouter registers the service routes and middleware stack. Prediction
// is served both at /predict and under the API prefix.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(h.log))
	r.Use(loggingMiddleware(h.log))
	if h.opts.CORSEnabled {
		r.Use(corsMiddleware(h.opts.CORSOrigins))
	}

	r.Get("/", h.Index)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(h.opts.StaticDir))))
	r.Get("/health", h.Health)

	predictRoutes := func(r chi.Router) {
		r.Use(timeoutMiddleware(h.opts.RequestTimeout))
		if h.opts.Limiter != nil {
			r.Use(rateLimitMiddleware(h.opts.Limiter))
		}
		r.Post("/predict", h.Predict)
	}
	r.Group(predictRoutes)

	prefix := "/" + strings.Trim(h.opts.APIPrefix, "/")
	if prefix != "/" {
		r.Route(prefix, func(r chi.Router) {
			r.Get("/health", h.Health)
			r.Group(predictRoutes)
		})
	}

	return r
}
