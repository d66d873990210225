package middleware

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/server"
)

// MetricsInterceptor records a request counter and a duration histogram per
// endpoint. Failed calls carry the Matrix error code as an attribute. If mp
// is nil the global provider is used.
func MetricsInterceptor(mp metric.MeterProvider) (server.Interceptor, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter("mxapi.server.requests",
		metric.WithDescription("Endpoint calls handled."))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("mxapi.server.duration",
		metric.WithDescription("Endpoint call duration."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return func(ctx *server.Context, req any, next server.HandlerFunc) (any, error) {
		start := time.Now()
		res, err := next(ctx, req)

		errcode := ""
		if err != nil {
			errcode = mxapi.MatrixErrorFrom(err).Code
		}
		attrs := metric.WithAttributes(
			attribute.String("endpoint", ctx.Endpoint().Name()),
			attribute.String("errcode", errcode),
		)
		requests.Add(ctx, 1, attrs)
		duration.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), attrs)

		return res, err
	}, nil
}
