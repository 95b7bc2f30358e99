package core

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"surfcast/internal/types"
)

const (
	// Used when the config leaves Server.RequestTimeout at zero.
	defaultRequestTimeout = 85 * time.Second

	requestIDHeader = "X-Request-Id"
)

// Client-supplied IDs end up in logs and error bodies, so only short opaque
// tokens are trusted.
var clientRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// MountRoutes installs the middleware chain, then /v1, /health and (when a
// handler is set) /metrics. The chain runs outermost first: panic recovery,
// request deadline, request ID, security headers, access log, CORS, metrics.
// Metrics sits last so chi has resolved the route pattern.
func (s *Server) MountRoutes() {
	timeout, origins := defaultRequestTimeout, []string{"*"}
	if s.Config != nil {
		if t := s.Config.Server.RequestTimeout; t > 0 {
			timeout = t
		}
		if o := s.Config.Server.CorsAllowedOrigins; len(o) > 0 {
			origins = o
		}
	}

	s.router.Use(
		s.Recoverer,
		ContextTimeoutMiddleware(timeout),
		RequestIDMiddleware,
		SecurityHeadersMiddleware,
		RequestLogger(s.Logger),
		NewCORSMiddleware(origins),
		s.MetricsMiddleware,
	)

	s.router.Route("/v1", func(r chi.Router) {
		for _, register := range s.V1RouteRegistrars {
			register(r)
		}
	})
	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}
}

// ContextTimeoutMiddleware cancels the request context after d.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware keeps a well-formed inbound X-Request-Id, otherwise
// mints a UUID. The ID goes into the context and back out on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !clientRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
	})
}
