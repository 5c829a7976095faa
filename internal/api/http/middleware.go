package http

import (
	"context"
	"errors"
	nethttp "net/http"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/observability"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// RegisterMiddlewares attaches the request timeout, the access log and the
// error envelope. The access log sits outside the envelope so it records the
// final status.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorHandlingMiddleware(logger, metrics))
}

// requestTimeoutMiddleware bounds the user context. Desk event streams
// outlive the handler and do not use it.
func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// deskError maps failures that are not DomainErrors but still have a
// meaningful status for desk clients.
func deskError(err error) *apperrors.DomainError {
	switch {
	case errors.Is(err, desk.ErrClosed):
		return apperrors.NewDomainError("DESK_CLOSED", "desk closed, open a new one", nethttp.StatusGone, nil)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewDomainError("TIMEOUT", "request timed out", nethttp.StatusGatewayTimeout, nil)
	}
	return apperrors.ToDomainError(err)
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			var domainErr *apperrors.DomainError
			if !errors.As(err, &domainErr) {
				domainErr = deskError(err)
			}
			route := c.Path()
			if r := c.Route(); r != nil && r.Path != "" {
				route = r.Path
			}
			metrics.RecordError(route, c.Method(), domainErr.Code)

			body := fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
			}
			if len(domainErr.Details) > 0 {
				body["details"] = domainErr.Details
			}
			if domainErr.HTTPStatus >= nethttp.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("route", route),
					zap.String("method", c.Method()),
					zap.String("code", domainErr.Code),
					zap.Error(err),
				)
			}
			c.Status(domainErr.HTTPStatus)
			_ = c.JSON(fiber.Map{"error": body})
			err = nil
		}()
		return c.Next()
	}
}
