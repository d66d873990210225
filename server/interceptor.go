package server

import (
	"context"
)

// HandlerFunc represents the next handler in an interceptor chain.
type HandlerFunc func(ctx context.Context, req any) (res any, err error)

// Interceptor wraps handler execution.
//
//	func timing(ctx *server.Context, req any, next server.HandlerFunc) (any, error) {
//	    start := time.Now()
//	    res, err := next(ctx, req)
//	    log.Printf("%s took %v", ctx.Endpoint().Name(), time.Since(start))
//	    return res, err
//	}
//
// req is the *Request[P, Q, B] built for the endpoint; res is its R.
// Interceptors may short-circuit by returning without calling next.
type Interceptor func(ctx *Context, req any, next HandlerFunc) (res any, err error)

// chainInterceptors combines interceptors so that the first one runs
// outermost.
func chainInterceptors(interceptors []Interceptor) Interceptor {
	if len(interceptors) == 0 {
		return nil
	}
	if len(interceptors) == 1 {
		return interceptors[0]
	}
	return func(ctx *Context, req any, handler HandlerFunc) (any, error) {
		chain := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chain
			chain = func(c context.Context, req any) (any, error) {
				sc, ok := FromContext(c)
				if !ok {
					sc = ctx
				}
				// An interceptor may have wrapped the context; keep its
				// values visible downstream.
				if c != context.Context(sc) {
					wrapped := *sc
					wrapped.Context = c
					sc = &wrapped
				}
				return current(sc, req, next)
			}
		}
		return chain(ctx, req)
	}
}
