package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core/dashboard"
)

const headerFormInstance = "X-Form-Instance"

// guardMiddleware rejects a submission while the previous one of the same form instance is in flight.
// Form instances are scoped to the session; without an X-Form-Instance header the route is the instance.
func guardMiddleware(guard *dashboard.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}

			instance := ctx.Request().Header.Get(headerFormInstance)
			if instance == "" {
				instance = ctx.Request().Method + " " + ctx.Request().URL.Path
			}
			return guard.Do(sess.ID+"|"+instance, func() error { return next(ctx) })
		}
	}
}
