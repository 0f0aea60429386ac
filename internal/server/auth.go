package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"adcreative/internal/core"
)

// AuthMiddleware creates an Echo middleware that validates the master key.
// Requests to skipPaths are always allowed. If masterKey is empty, no
// authentication is required.
func AuthMiddleware(masterKey string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if masterKey == "" {
				return next(c)
			}
			if _, ok := skip[c.Request().URL.Path]; ok {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorized("missing authorization header")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return unauthorized("invalid authorization header format, expected 'Bearer <token>'")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return unauthorized("invalid master key")
			}

			return next(c)
		}
	}
}

func unauthorized(details string) *core.Error {
	return core.NewUpstreamAuthError("", "Unauthorized").WithDetails(details)
}
