package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/dashboard"
	"github.com/trackmyacademy/dashboard/core/user"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, core.ErrUnauthorized.Error())
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, core.ErrForbidden.Error())
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, core.ErrNotFound.Error())
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// A session whose token the backend rejected is deleted.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(
	logger core.Logger,
	translator ut.Translator,
	usrSvc *user.Service,
	signalShutdown func(),
) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			code = http.StatusBadRequest
			message = core.TranslateValidationErrors(origErr, translator)
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.TransportError:
			code = http.StatusBadGateway
			message = dashboard.ErrorMessage(origErr)
			logger.Warn(fmt.Sprintf("%s: %v", ctx.Path(), err), err, contextUser(ctx))
		case *core.RejectionError:
			code = http.StatusUnprocessableEntity
			message = origErr.Message
		default:
			switch origErr {
			case core.ErrUnauthorized:
				code = http.StatusUnauthorized
				message = origErr.Error()
				if sess, sErr := getContextSession(ctx); sErr == nil {
					usrSvc.Invalidate(ctx.Request().Context(), sess.ID)
				}
			case core.ErrForbidden:
				code = http.StatusForbidden
				message = origErr.Error()
			case core.ErrNotFound, dashboard.ErrUnknownResource:
				code = http.StatusNotFound
				message = origErr.Error()
			case dashboard.ErrSubmitInFlight:
				code = http.StatusConflict
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg), contextUser(ctx))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
