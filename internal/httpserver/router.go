package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"email-tracker/internal/logging"
	"email-tracker/internal/metrics"
	"email-tracker/internal/models"
)

// NewRouter wires the REST routes, the websocket endpoint and the operational endpoints
func NewRouter(h *Handlers, ws http.HandlerFunc, cfg models.ServerConfig) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	// Routes
	r.Route("/emails", func(r chi.Router) {
		r.Get("/", h.ListEmails)
		r.Post("/", h.CreateEmail)
		r.Get("/search", h.SearchEmails)
		r.Get("/filter", h.FilterEmails)
		r.Post("/{id}/tags", h.AddTags)
		r.Delete("/{id}", h.DeleteEmail)
	})
	r.Get("/ws", ws)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// requestLogger logs every request with logrus and records its latency
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		elapsed := time.Since(start)
		metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), elapsed)

		entry := logging.Log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
			"duration":   elapsed.String(),
			"remote":     r.RemoteAddr,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("Request failed")
			return
		}
		entry.Debug("Request served")
	})
}
