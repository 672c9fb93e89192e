package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/logging"
	"mspro-labs/coffee-finder/internal/state"
)

// Mounter registers routes on the shared router.
type Mounter interface {
	Routes(r chi.Router)
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger   zerolog.Logger
	Sessions *state.Registry
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Timeout bounds each request. Zero disables it.
	Timeout time.Duration
}

// NewRouter builds the chi router with the common middleware stack, the ops
// endpoints, and every mounter's routes.
func NewRouter(opts RouterOptions, mounts ...Mounter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Group(func(r chi.Router) {
		if opts.Sessions != nil {
			r.Use(Sessions(opts.Sessions))
		}
		for _, m := range mounts {
			m.Routes(r)
		}
	})
	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logging.Component(logger, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}
