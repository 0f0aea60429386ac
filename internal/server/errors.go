package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"adcreative/internal/core"
	"adcreative/internal/observability"
)

// ErrorHandler renders every error returned by handlers and middleware as the
// {error, details} envelope. With debug set the wrapped cause is included.
func ErrorHandler(debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if writeErr := handleError(c, err, debug); writeErr != nil {
			slog.Error("failed to write error response", "error", writeErr)
		}
	}
}

// handleError converts errors to the client envelope with a status mirroring the failure class.
func handleError(c echo.Context, err error, debug bool) error {
	e := toCoreError(err)
	status := e.HTTPStatusCode()

	attrs := []any{
		"type", e.Kind,
		"status", status,
		"path", c.Path(),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	}
	if e.Upstream != "" {
		attrs = append(attrs, "upstream", e.Upstream)
		observability.UpstreamErrors.WithLabelValues(e.Upstream, string(e.Kind)).Inc()
	}
	if e.Err != nil {
		attrs = append(attrs, "cause", e.Err)
	}
	if status >= http.StatusInternalServerError {
		slog.Error(e.Message, attrs...)
	} else {
		slog.Warn(e.Message, attrs...)
	}

	if c.Request().Method == http.MethodHead {
		return c.NoContent(status)
	}
	return c.JSON(status, e.ToJSON(debug))
}

func toCoreError(err error) *core.Error {
	var e *core.Error
	if errors.As(err, &e) {
		return e
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		details := ""
		if m, ok := he.Message.(string); ok && m != msg {
			details = m
		} else if he.Message != nil && !ok {
			details = fmt.Sprint(he.Message)
		}
		return &core.Error{
			Kind:       kindForStatus(he.Code),
			Message:    msg,
			Details:    details,
			StatusCode: he.Code,
			Err:        he.Internal,
		}
	}

	return core.NewInternalError("An unexpected error occurred", err)
}

func kindForStatus(status int) core.ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return core.KindRateLimit
	case status >= 400 && status < 500:
		return core.KindValidation
	default:
		return core.KindInternal
	}
}
