// Package server exposes the public HTTP surface: the federation
// scrape proxy and the cross-device sync endpoints, both rate limited
// per client, plus health and metrics.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/logging"
)

// slugPattern bounds every club namespace accepted on the wire.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{1,40}$`)

// Fetcher is the upstream page client the scrape proxy delegates to.
type Fetcher interface {
	ValidateURL(raw string) error
	FetchPage(ctx context.Context, url string) (string, error)
}

// Options configures a Server.
type Options struct {
	Fetcher Fetcher
	Sync    *SyncStore
	// Secret signs sync tokens. Empty disables the sync endpoints.
	Secret string

	// Per-client budgets, requests per window.
	ScrapeLimit int
	EventsLimit int
	// Window defaults to one minute.
	Window time.Duration
}

// Server carries the handler dependencies. Build the http.Handler with
// Router.
type Server struct {
	fetcher  Fetcher
	sync     *SyncStore
	secret   string
	validate *validator.Validate
	metrics  *metrics

	scrapeLimit int
	eventsLimit int
	window      time.Duration
}

// New creates a Server from options, filling unset budgets with
// conservative defaults.
func New(opts Options) *Server {
	s := &Server{
		fetcher:     opts.Fetcher,
		sync:        opts.Sync,
		secret:      opts.Secret,
		validate:    validator.New(),
		metrics:     newMetrics(),
		scrapeLimit: opts.ScrapeLimit,
		eventsLimit: opts.EventsLimit,
		window:      opts.Window,
	}
	if s.scrapeLimit <= 0 {
		s.scrapeLimit = 30
	}
	if s.eventsLimit <= 0 {
		s.eventsLimit = 60
	}
	if s.window <= 0 {
		s.window = time.Minute
	}
	// The tag mirrors the wire contract for club slugs.
	_ = s.validate.RegisterValidation("clubslug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return s
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Sync-Token"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter(s.scrapeLimit))
			r.Post("/scrape", s.handleScrape)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.limiter(s.eventsLimit))
			r.Post("/events/sync", s.handleSyncPush)
			r.Get("/events/sync", s.handleSyncPull)
		})
	})
	return r
}

// limiter builds a sliding-window rate limit middleware keyed by
// client IP. The scrape and events families get distinct instances so
// one cannot starve the other.
func (s *Server) limiter(limit int) func(http.Handler) http.Handler {
	return httprate.Limit(limit, s.window,
		httprate.WithKeyFuncs(clientKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded", "")
		}),
	)
}

// clientKey extracts the first forwarded address, falling back to a
// shared bucket when the header is absent. Direct peer addresses are
// deliberately not used: behind the expected reverse proxy they would
// all be the proxy itself.
func clientKey(r *http.Request) (string, error) {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd), nil
	}
	return "unknown", nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("failed to write response")
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func respondError(w http.ResponseWriter, code int, errMsg, detail string) {
	respondJSON(w, code, errorResponse{Error: errMsg, Message: detail})
}
