package server

import (
	"context"
	"net/http"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/id"
)

type contextKey struct {
	name string
}

var serverContextKey = &contextKey{"mxapi"}

// Context carries per-request dispatch metadata. It is passed to
// interceptors and is retrievable from the context.Context handed to
// handlers via FromContext.
type Context struct {
	context.Context

	endpoint    mxapi.Descriptor
	request     *http.Request
	writer      http.ResponseWriter
	accessToken string
	userID      id.UserID
}

func newContext(parent context.Context, w http.ResponseWriter, r *http.Request, d mxapi.Descriptor) *Context {
	ctx := &Context{
		endpoint: d,
		request:  r,
		writer:   w,
	}
	ctx.Context = context.WithValue(parent, serverContextKey, ctx)
	return ctx
}

// NewTestContext returns a Context for d that is not attached to any HTTP
// exchange. It is meant for exercising interceptors in isolation.
func NewTestContext(parent context.Context, d mxapi.Descriptor) *Context {
	return newContext(parent, nil, nil, d)
}

// Endpoint returns the descriptor of the operation being served.
func (c *Context) Endpoint() mxapi.Descriptor { return c.endpoint }

// HTTPRequest returns the underlying request, or nil for test contexts.
func (c *Context) HTTPRequest() *http.Request { return c.request }

// AccessToken returns the token presented by the caller, if any.
func (c *Context) AccessToken() string { return c.accessToken }

// UserID returns the authenticated user. It is the zero value when no
// authenticator is configured or the caller presented no token.
func (c *Context) UserID() id.UserID { return c.userID }

// SetHeader sets a response header. It is a no-op for test contexts.
func (c *Context) SetHeader(key, value string) {
	if c.writer != nil {
		c.writer.Header().Set(key, value)
	}
}

// FromContext returns the dispatch Context stored in ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	if c, ok := ctx.(*Context); ok {
		return c, true
	}
	c, ok := ctx.Value(serverContextKey).(*Context)
	return c, ok
}

// UserIDFromContext returns the authenticated user of the current request.
func UserIDFromContext(ctx context.Context) (id.UserID, bool) {
	c, ok := FromContext(ctx)
	if !ok || c.userID.IsZero() {
		return id.UserID{}, false
	}
	return c.userID, true
}

// SetHeader sets an HTTP response header.
// It requires that the handler was called via the Server.
func SetHeader(ctx context.Context, key, value string) {
	if c, ok := FromContext(ctx); ok {
		c.SetHeader(key, value)
	}
}
