// Package observability provides request-scoped logging and the
// provider call metrics surfaced by the metrics endpoint.
package observability

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	// LogFieldRequestID is the field name for the request ID.
	LogFieldRequestID = "request_id"
	// LogFieldMethod is the field name for the HTTP method.
	LogFieldMethod = "method"
	// LogFieldPath is the field name for the route path.
	LogFieldPath = "path"
	// LogFieldStatus is the field name for the response status.
	LogFieldStatus = "status"
	// LogFieldClientIP is the field name for the client address.
	LogFieldClientIP = "client_ip"
	// LogFieldDuration is the field name for duration in milliseconds.
	LogFieldDuration = "duration_ms"
)

// RequestLogger returns an echo middleware that logs one line per
// request and tags the response with a generated request ID.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Request().Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String(LogFieldRequestID, requestID),
				slog.String(LogFieldMethod, c.Request().Method),
				slog.String(LogFieldPath, c.Request().URL.Path),
				slog.Int(LogFieldStatus, status),
				slog.String(LogFieldClientIP, c.RealIP()),
				slog.Int64(LogFieldDuration, time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)

			return nil
		}
	}
}
