package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"adcreative/internal/core"
	"adcreative/internal/observability"
	"adcreative/internal/ratelimit"
	"adcreative/internal/usage"
)

// RequestIDMiddleware keeps a client-supplied X-Request-ID or generates one, echoes it on
// the response and stores it in the request context.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(core.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}

// RequestLogger logs one line per request after the response is written.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				// Commit the error response so the logged status is the one the client sees.
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"bytes_out", c.Response().Size,
				"request_id", core.GetRequestID(req.Context()),
			}
			if id := core.GetClientID(req.Context()); id != "" {
				attrs = append(attrs, "client_id", id)
			}
			level := slog.LevelInfo
			if status >= 500 {
				level = slog.LevelError
			} else if req.URL.Path == "/health" {
				level = slog.LevelDebug
			}
			slog.Log(req.Context(), level, "request", attrs...)
			return nil
		}
	}
}

// EndpointMiddleware tags the request context with the endpoint name and client identity,
// applies the request timeout and records latency.
func EndpointMiddleware(endpoint string, timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := usage.WithEndpoint(req.Context(), endpoint)
			ctx = core.WithClientID(ctx, ratelimit.ClientIdentifier(req.Header))
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			c.SetRequest(req.WithContext(ctx))

			observability.InflightRequests.Inc()
			defer observability.InflightRequests.Dec()

			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				status = toCoreError(err).HTTPStatusCode()
			}
			observability.RequestDuration.WithLabelValues(endpoint, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// RateLimitMiddleware admits or rejects requests to endpoint. X-RateLimit-* headers are
// set on every limited response; rejections add Retry-After and return 429.
func RateLimitMiddleware(limiter *ratelimit.Limiter, endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			clientID := core.GetClientID(ctx)
			if clientID == "" {
				clientID = ratelimit.ClientIdentifier(c.Request().Header)
			}

			res := limiter.Allow(ctx, endpoint, clientID)
			header := c.Response().Header()
			for k, v := range res.Headers() {
				header[k] = v
			}
			if !res.Allowed {
				return core.NewRateLimitError("Rate limit exceeded").
					WithDetails("Too many requests to /" + endpoint + ". Try again in " + strconv.Itoa(res.Reset) + " seconds.")
			}
			return next(c)
		}
	}
}
