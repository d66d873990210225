package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/broady/mxapi"
	"github.com/broady/mxapi/server"
)

// LoggingInterceptor creates an interceptor that logs endpoint calls using slog.
// It logs the start and end of each call, including duration and, on
// failure, the Matrix error code the caller will see. Client errors are
// logged at warning level and server errors at error level.
func LoggingInterceptor(logger *slog.Logger) server.Interceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx *server.Context, req any, next server.HandlerFunc) (any, error) {
		start := time.Now()
		endpoint := slog.String("endpoint", ctx.Endpoint().Name())

		logger.InfoContext(ctx, "request started", endpoint)

		res, err := next(ctx, req)
		duration := time.Since(start)

		if err != nil {
			matrixErr := mxapi.MatrixErrorFrom(err)
			level := slog.LevelWarn
			if matrixErr.StatusCode == 0 || matrixErr.StatusCode >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "request failed",
				endpoint,
				slog.Duration("duration", duration),
				slog.String("errcode", matrixErr.Code),
				slog.Any("error", err),
			)
		} else {
			logger.InfoContext(ctx, "request completed",
				endpoint,
				slog.Duration("duration", duration),
			)
		}

		return res, err
	}
}
