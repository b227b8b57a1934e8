// Package server exposes stamping sessions over HTTP.
//
// All session endpoints live under /api/sessions. Pointer events use preview-pixel
// coordinates: overlay raster pixels for region selection and template preview
// pixels for stamp placement.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/compose"
	"github.com/local/pdfstamp/internal/metrics"
	"github.com/local/pdfstamp/internal/session"
	"github.com/local/pdfstamp/internal/statuscheck"
	"github.com/local/pdfstamp/internal/store"
	"github.com/local/pdfstamp/internal/web"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	Sessions  *session.Manager
	Composer  *compose.Composer
	Checker   *statuscheck.Checker
	History   store.History
	UploadDir string
	// MaxUploadBytes caps each uploaded document.
	MaxUploadBytes int64
	// Dashboard is mounted under /web when set.
	Dashboard *web.Web
}

// Routes returns the router with every endpoint registered.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", metrics.Handler())

	if s.Dashboard != nil {
		r.Mount("/web", s.Dashboard.Routes())
	}

	r.With(s.requireDashboardLogin).Get("/api/merges", s.handleRecentMerges)
	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", s.handleCreateSession)
		api.Route("/{sessionID}", func(sr chi.Router) {
			sr.Get("/", s.handleGetSession)
			sr.Delete("/", s.handleDeleteSession)
			sr.Post("/template", s.handleUploadTemplate)
			sr.Post("/overlay", s.handleUploadOverlay)
			sr.Get("/overlay.png", s.handleOverlayPNG)
			sr.Post("/selection/{event}", s.handleSelectionEvent)
			sr.Put("/stamp/size", s.handleStampSize)
			sr.Put("/stamp/position", s.handleStampPosition)
			sr.Post("/stamp/{event}", s.handleStampEvent)
			sr.Get("/preview.png", s.handlePreviewPNG)
			sr.Post("/actions/merge", s.handleMerge)
			sr.Get("/output", s.handleDownloadOutput)
		})
	})
	return r
}

// requireDashboardLogin admits only requests carrying a dashboard login token.
func (s *Server) requireDashboardLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case s.Dashboard == nil || !s.Dashboard.Enabled():
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "dashboard login is not configured", Kind: "forbidden"})
		case !s.Dashboard.Authorized(r):
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "login required", Kind: "unauthorized"})
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// NewHTTPServer wraps the router with the service timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
