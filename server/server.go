// Package server dispatches HTTP requests to typed handlers for mxapi
// endpoints.
//
// Routes come from each endpoint's path template, so a handler is
// registered by endpoint rather than by hand-written pattern:
//
//	s := server.New().WithAuthenticator(auth)
//	server.Handle(s, r0.RedactEvent, redact)
//	http.ListenAndServe(":8008", s.Handler())
//
// Failures are answered with the Matrix error envelope. Authentication and
// rate limiting are enforced according to each endpoint's declared policy
// once an Authenticator and a Limiter are configured.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/broady/mxapi"
)

// DefaultMaxRequestBodySize is the body limit applied unless
// WithMaxRequestBodySize says otherwise.
const DefaultMaxRequestBodySize = 1 << 20

// Server is the route table for registered endpoints. It is safe for
// concurrent use; handlers may be registered while serving.
type Server struct {
	mu                 sync.RWMutex
	catalog            *mxapi.Catalog
	handlers           map[string]routeHandler
	interceptors       []Interceptor
	middlewares        []func(http.Handler) http.Handler
	logger             *slog.Logger
	maskInternalErrors bool
	maxRequestBodySize uint64
	authenticator      Authenticator
	limiter            Limiter
}

// routeHandler is implemented by the typed handlers created by Handle.
type routeHandler interface {
	descriptor() mxapi.Descriptor
	serve(ctx *Context, values map[string]string, cfg *serveConfig)
}

// serveConfig is the server state a handler needs, captured under the read
// lock so a request sees one consistent configuration.
type serveConfig struct {
	interceptors       []Interceptor
	logger             *slog.Logger
	maskInternalErrors bool
	maxRequestBodySize uint64
	authenticator      Authenticator
	limiter            Limiter
}

// New creates an empty server.
func New() *Server {
	return &Server{
		catalog:            mxapi.MustCatalog(),
		handlers:           make(map[string]routeHandler),
		maxRequestBodySize: DefaultMaxRequestBodySize,
	}
}

// WithMaskInternalErrors replaces the message of every 5xx response with a
// generic one. The original error is still available to interceptors and
// logging.
func (s *Server) WithMaskInternalErrors() *Server {
	s.maskInternalErrors = true
	return s
}

// WithInterceptor adds a global interceptor.
//
// Interceptor execution order:
//  1. Global interceptors (added via Server.WithInterceptor)
//  2. Handler interceptors (passed to Handle)
//  3. Handler function
//
// Within each level, interceptors execute in the order they were added.
func (s *Server) WithInterceptor(i Interceptor) *Server {
	s.interceptors = append(s.interceptors, i)
	return s
}

// WithMiddleware adds an HTTP middleware to wrap the server.
// Middleware is applied in the order added (first added is outermost).
func (s *Server) WithMiddleware(mw func(http.Handler) http.Handler) *Server {
	s.middlewares = append(s.middlewares, mw)
	return s
}

// WithLogger sets a custom logger for the server.
// If not set, slog.Default() will be used.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// WithMaxRequestBodySize sets the maximum request body size.
// A value of 0 means no limit.
func (s *Server) WithMaxRequestBodySize(size uint64) *Server {
	s.maxRequestBodySize = size
	return s
}

// WithAuthenticator enables access token checks. Endpoints that require
// authentication reject callers without a valid token; other endpoints
// authenticate a token when one is presented.
func (s *Server) WithAuthenticator(a Authenticator) *Server {
	s.authenticator = a
	return s
}

// WithLimiter enables rate limiting of endpoints declared as rate limited.
func (s *Server) WithLimiter(l Limiter) *Server {
	s.limiter = l
	return s
}

// Routes returns the route table of the registered endpoints.
func (s *Server) Routes() []mxapi.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog.Routes()
}

// Handler returns an http.Handler for use with http.ListenAndServe or other
// HTTP servers. The returned handler includes all configured middleware.
func (s *Server) Handler() http.Handler {
	var h http.Handler = http.HandlerFunc(s.serveHTTP)
	// Apply middleware in reverse order so first added is outermost
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		h = s.middlewares[i](h)
	}
	return h
}

func (s *Server) getLogger() *slog.Logger {
	if s.logger == nil {
		return slog.Default()
	}
	return s.logger
}

// register adds or replaces the handler for h's endpoint. Replacing logs a
// warning; a route that collides with another endpoint panics.
func (s *Server) register(h routeHandler) {
	d := h.descriptor()

	s.mu.Lock()
	defer s.mu.Unlock()

	endpoints := s.catalog.All()
	if _, exists := s.handlers[d.Name()]; exists {
		s.getLogger().Warn("duplicate route registration",
			slog.String("endpoint", d.Name()),
			slog.String("route", d.RouterPath()))
		endpoints = slices.DeleteFunc(endpoints, func(e mxapi.Descriptor) bool {
			return e.Name() == d.Name()
		})
	}

	catalog, err := mxapi.NewCatalog(append(endpoints, d)...)
	if err != nil {
		panic("server: " + err.Error())
	}
	s.catalog = catalog
	s.handlers[d.Name()] = h
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	logger := s.getLogger()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("PANIC recovered",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			writeError(w, mxapi.NewMatrixError(http.StatusInternalServerError, mxapi.ErrCodeUnknown, "Internal server error"), logger)
		}
	}()

	s.mu.RLock()
	d, values, allowed := s.catalog.Match(mxapi.Method(r.Method), r.URL.EscapedPath())
	var h routeHandler
	if d != nil {
		h = s.handlers[d.Name()]
	}
	cfg := &serveConfig{
		interceptors:       s.interceptors,
		logger:             logger,
		maskInternalErrors: s.maskInternalErrors,
		maxRequestBodySize: s.maxRequestBodySize,
		authenticator:      s.authenticator,
		limiter:            s.limiter,
	}
	s.mu.RUnlock()

	if h == nil {
		if len(allowed) > 0 {
			methods := make([]string, len(allowed))
			for i, m := range allowed {
				methods[i] = m.String()
			}
			w.Header().Set("Allow", strings.Join(methods, ", "))
			writeError(w, mxapi.NewMatrixError(http.StatusMethodNotAllowed, mxapi.ErrCodeUnrecognized, "Unrecognized request"), logger)
			return
		}
		writeError(w, mxapi.NewMatrixError(http.StatusNotFound, mxapi.ErrCodeUnrecognized, "Unrecognized request"), logger)
		return
	}

	h.serve(newContext(r.Context(), w, r, d), values, cfg)
}

// handleError answers err with its Matrix envelope.
func handleError(w http.ResponseWriter, err error, cfg *serveConfig) {
	matrixErr := mxapi.MatrixErrorFrom(err)
	if matrixErr.StatusCode == 0 {
		withStatus := *matrixErr
		withStatus.StatusCode = http.StatusInternalServerError
		matrixErr = &withStatus
	}
	if matrixErr.StatusCode >= http.StatusInternalServerError {
		cfg.logger.Error("request failed", slog.Any("error", err))
		if cfg.maskInternalErrors {
			masked := *matrixErr
			masked.Message = "Internal server error"
			matrixErr = &masked
		}
	}
	writeError(w, matrixErr, cfg.logger)
}

func writeError(w http.ResponseWriter, matrixErr *mxapi.MatrixError, logger *slog.Logger) {
	if matrixErr.RetryAfterMs > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(matrixErr.RetryAfterMs))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(matrixErr.StatusCode)
	if err := json.NewEncoder(w).Encode(matrixErr); err != nil {
		// Headers already sent, nothing we can do. Log for debugging.
		logger.Error("failed to encode error response",
			slog.String("errcode", matrixErr.Code),
			slog.Any("error", err))
	}
}

func retryAfterSeconds(ms int64) string {
	d := (time.Duration(ms)*time.Millisecond + time.Second - 1) / time.Second
	return strconv.FormatInt(int64(d), 10)
}
