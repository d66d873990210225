package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig holds the configuration for CORS middleware.
type CORSConfig struct {
	// AllowOrigins is a list of origins a cross-domain request can be executed from.
	// If the list contains "*", all origins are allowed.
	// Default: ["*"]
	AllowOrigins []string

	// AllowMethods is a list of methods the client is allowed to use.
	// Default: ["GET", "POST", "PUT", "DELETE", "OPTIONS"]
	AllowMethods []string

	// AllowHeaders is a list of headers the client is allowed to use.
	// Default: ["X-Requested-With", "Content-Type", "Authorization"]
	AllowHeaders []string

	// ExposeHeaders indicates which headers are safe to expose.
	// Default: []
	ExposeHeaders []string

	// AllowCredentials indicates whether the request can include credentials.
	// Default: false
	AllowCredentials bool

	// MaxAge indicates how long (in seconds) the results of a preflight request can be cached.
	// Default: 0 (not set)
	MaxAge int
}

var (
	defaultAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultAllowHeaders = []string{"X-Requested-With", "Content-Type", "Authorization"}
)

// DefaultCORSConfig returns the headers Matrix clients running in a browser
// expect from every client-server endpoint.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: slices.Clone(defaultAllowMethods),
		AllowHeaders: slices.Clone(defaultAllowHeaders),
	}
}

// CORS returns an HTTP middleware that handles CORS preflight requests and sets CORS headers.
// This is an HTTP middleware, not an interceptor, so it wraps the entire http.Handler
// and answers preflight requests before routing.
func CORS(cfg *CORSConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = DefaultCORSConfig()
	}

	allowedOrigins := cfg.AllowOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	allowedMethods := cfg.AllowMethods
	if len(allowedMethods) == 0 {
		allowedMethods = defaultAllowMethods
	}

	allowedHeaders := cfg.AllowHeaders
	if len(allowedHeaders) == 0 {
		allowedHeaders = defaultAllowHeaders
	}

	wildcard := slices.Contains(allowedOrigins, "*")
	allowedMethodsStr := strings.Join(allowedMethods, ", ")
	allowedHeadersStr := strings.Join(allowedHeaders, ", ")
	exposedHeadersStr := strings.Join(cfg.ExposeHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := wildcard || (origin != "" && slices.Contains(allowedOrigins, origin))
			if allowed {
				switch {
				case origin != "" && !wildcard:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				case origin != "" && cfg.AllowCredentials:
					// "*" is not allowed together with credentials.
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				default:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}

				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", allowedMethodsStr)
				w.Header().Set("Access-Control-Allow-Headers", allowedHeadersStr)
				if exposedHeadersStr != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposedHeadersStr)
				}
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
