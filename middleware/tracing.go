package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/server"
)

const instrumentationName = "github.com/broady/mxapi/middleware"

// TracingInterceptor starts a server span per endpoint call, named after the
// endpoint. If tp is nil the global provider is used.
func TracingInterceptor(tp trace.TracerProvider) server.Interceptor {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	tracer := tp.Tracer(instrumentationName)

	return func(ctx *server.Context, req any, next server.HandlerFunc) (any, error) {
		d := ctx.Endpoint()
		spanCtx, span := tracer.Start(ctx, d.Name(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", d.Method().String()),
				attribute.String("http.route", d.RouterPath()),
				attribute.Bool("matrix.requires_authentication", d.RequiresAuthentication()),
				attribute.Bool("matrix.rate_limited", d.RateLimited()),
			),
		)
		defer span.End()

		res, err := next(spanCtx, req)
		if err != nil {
			matrixErr := mxapi.MatrixErrorFrom(err)
			span.SetAttributes(
				attribute.String("matrix.errcode", matrixErr.Code),
				attribute.Int("http.response.status_code", matrixErr.StatusCode),
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, matrixErr.Code)
			return res, err
		}
		span.SetStatus(codes.Ok, "")
		return res, nil
	}
}
