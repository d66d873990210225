package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
)

// Request is the decoded input of an endpoint.
type Request[P, Q, B any] struct {
	Path  P
	Query Q
	Body  B
}

// Authenticator resolves an access token to the user it was issued to.
// Returning a *mxapi.MatrixError controls the response; any other error is
// answered with 401 M_UNKNOWN_TOKEN.
type Authenticator func(ctx context.Context, token string) (id.UserID, error)

// Limiter decides whether a request to a rate-limited endpoint may
// proceed. When it may not, retryAfter is reported to the caller.
type Limiter interface {
	Allow(ctx *Context) (retryAfter time.Duration, ok bool)
}

// LimiterFunc adapts a function to the Limiter interface.
type LimiterFunc func(ctx *Context) (time.Duration, bool)

// Allow implements Limiter.
func (f LimiterFunc) Allow(ctx *Context) (time.Duration, bool) { return f(ctx) }

// Handler serves one endpoint with a typed function.
type Handler[P, Q, B, R any] struct {
	endpoint     *mxapi.Endpoint[P, Q, B, R]
	fn           func(context.Context, *Request[P, Q, B]) (R, error)
	interceptors []Interceptor
}

// Handle registers fn as the handler for e. Interceptors given here run
// after the server's global interceptors. Registering the same endpoint
// again replaces the previous handler; registering an endpoint whose route
// collides with a different one panics.
func Handle[P, Q, B, R any](s *Server, e *mxapi.Endpoint[P, Q, B, R], fn func(context.Context, *Request[P, Q, B]) (R, error), interceptors ...Interceptor) *Handler[P, Q, B, R] {
	h := &Handler[P, Q, B, R]{
		endpoint:     e,
		fn:           fn,
		interceptors: interceptors,
	}
	s.register(h)
	return h
}

func (h *Handler[P, Q, B, R]) descriptor() mxapi.Descriptor {
	return h.endpoint
}

func (h *Handler[P, Q, B, R]) serve(ctx *Context, values map[string]string, cfg *serveConfig) {
	w, r := ctx.writer, ctx.request

	if err := authenticate(ctx, cfg.authenticator); err != nil {
		handleError(w, err, cfg)
		return
	}
	if h.endpoint.RateLimited() && cfg.limiter != nil {
		if retryAfter, ok := cfg.limiter.Allow(ctx); !ok {
			limited := mxapi.NewMatrixError(http.StatusTooManyRequests, mxapi.ErrCodeLimitExceeded, "Too many requests")
			limited.RetryAfterMs = retryAfter.Milliseconds()
			handleError(w, limited, cfg)
			return
		}
	}

	req, err := h.decode(w, r, values, cfg.maxRequestBodySize)
	if err != nil {
		cfg.logger.DebugContext(ctx, "request rejected",
			slog.String("endpoint", h.endpoint.Name()),
			slog.Any("error", err))
		handleError(w, err, cfg)
		return
	}

	all := make([]Interceptor, 0, len(cfg.interceptors)+len(h.interceptors))
	all = append(all, cfg.interceptors...)
	all = append(all, h.interceptors...)
	chain := chainInterceptors(all)

	final := func(c context.Context, reqAny any) (any, error) {
		typed, ok := reqAny.(*Request[P, Q, B])
		if !ok {
			return nil, fmt.Errorf("server: interceptor replaced %T with %T", req, reqAny)
		}
		return h.fn(c, typed)
	}

	var res any
	if chain != nil {
		res, err = chain(ctx, req, final)
	} else {
		res, err = final(ctx, req)
	}
	if err != nil {
		handleError(w, err, cfg)
		return
	}

	typed, ok := res.(R)
	if !ok && res != nil {
		handleError(w, fmt.Errorf("server: interceptor returned %T for %s", res, h.endpoint.Name()), cfg)
		return
	}
	data, err := h.endpoint.EncodeResponse(typed)
	if err != nil {
		handleError(w, err, cfg)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		cfg.logger.DebugContext(ctx, "failed to write response",
			slog.String("endpoint", h.endpoint.Name()),
			slog.Any("error", err))
	}
}

// decode converts the captured path values, the query string and the body
// into the endpoint's typed request.
func (h *Handler[P, Q, B, R]) decode(w http.ResponseWriter, r *http.Request, values map[string]string, limit uint64) (*Request[P, Q, B], error) {
	p, err := h.endpoint.DecodePath(values)
	if err != nil {
		return nil, err
	}
	q, err := h.endpoint.DecodeQuery(r.URL.Query())
	if err != nil {
		return nil, err
	}

	var data []byte
	if h.endpoint.Method().HasBody() && r.Body != nil {
		body := r.Body
		if limit > 0 {
			body = http.MaxBytesReader(w, r.Body, int64(limit))
		}
		data, err = io.ReadAll(body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, mxapi.NewMatrixError(http.StatusRequestEntityTooLarge, mxapi.ErrCodeTooLarge,
					fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			}
			return nil, mxapi.NewMatrixError(http.StatusBadRequest, mxapi.ErrCodeNotJSON, "failed to read request body")
		}
	}
	b, err := h.endpoint.DecodeBody(data)
	if err != nil {
		return nil, err
	}

	return &Request[P, Q, B]{Path: p, Query: q, Body: b}, nil
}

// authenticate applies the endpoint's authentication policy. Without an
// authenticator nothing is enforced.
func authenticate(ctx *Context, auth Authenticator) error {
	token := accessToken(ctx.request)
	ctx.accessToken = token
	if auth == nil {
		return nil
	}
	if token == "" {
		if ctx.endpoint.RequiresAuthentication() {
			return mxapi.NewMatrixError(http.StatusUnauthorized, mxapi.ErrCodeMissingToken, "Missing access token")
		}
		return nil
	}
	userID, err := auth(ctx, token)
	if err != nil {
		var matrixErr *mxapi.MatrixError
		if errors.As(err, &matrixErr) {
			return matrixErr
		}
		return mxapi.NewMatrixError(http.StatusUnauthorized, mxapi.ErrCodeUnknownToken, "Unrecognised access token")
	}
	ctx.userID = userID
	return nil
}

// accessToken reads the bearer token, falling back to the access_token
// query parameter.
func accessToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
