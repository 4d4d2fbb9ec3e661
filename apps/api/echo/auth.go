package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core/user"
)

const (
	contextSessionKey = "session"
	bearerScheme      = "Bearer"
)

// bearerToken extracts the token of an `Authorization: Bearer <token>` header.
func bearerToken(ctx echo.Context) string {
	auth := ctx.Request().Header.Get(echo.HeaderAuthorization)
	l := len(bearerScheme)
	if len(auth) > l+1 && strings.EqualFold(auth[:l], bearerScheme) && auth[l] == ' ' {
		return strings.TrimSpace(auth[l+1:])
	}
	return ""
}

// sessionMiddleware authenticates the bearer session token and stores the Session in the context.
func sessionMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := svc.Authenticate(ctx.Request().Context(), bearerToken(ctx))
			if err != nil {
				return errors.Wrap(err, "authenticating session")
			}
			ctx.Set(contextSessionKey, sess)
			return next(ctx)
		}
	}
}

func getContextSession(ctx echo.Context) (user.Session, error) {
	if sess, ok := ctx.Get(contextSessionKey).(user.Session); ok {
		return sess, nil
	}
	return user.Session{}, errUnauthorized
}

// contextUser returns the signed-in user, or a zero User.
func contextUser(ctx echo.Context) user.User {
	sess, _ := getContextSession(ctx)
	return sess.User
}

// roleMiddleware only lets through users having one of `roles`.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := getContextSession(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context session")
			}
			if sess.User.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

type authApi struct {
	svc *user.Service
}

func registerAuthAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *user.Service) {
	api := authApi{svc: svc}

	ag := g.Group("/auth")

	// un-authed endpoints
	// TODO: rate limit `/login`, `/password-reset` & `/password-reset/confirm`
	ag.POST("/login", api.login)
	ag.POST("/signup", api.signUp)
	ag.POST("/password-reset", api.resetPassword)
	ag.POST("/password-reset/confirm", api.confirmPasswordReset)
	ag.GET("/roles", api.queryRoles)

	// authed endpoints
	ag.POST("/logout", api.logout, auth)
	ag.GET("/me", api.me, auth)
	ag.PUT("/password", api.updatePassword, auth)
}

type (
	LoginResponse struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		User      user.User `json:"user"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}
)

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data user.Credentials
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}

	sess, err := api.svc.Login(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: sess.ID, ExpiresAt: sess.ExpiresAt, User: sess.User})
}

func (api *authApi) signUp(ctx echo.Context) error {
	var data user.SignUp
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SignUp")
	}

	usr, err := api.svc.SignUp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "signing up")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data user.PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}

	// only validation errors are returned: do not tell attackers whether the email exists
	if err := api.svc.RequestPasswordReset(ctx.Request().Context(), data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.PasswordResetConfirm
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetConfirm")
	}

	if err := api.svc.ConfirmPasswordReset(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *authApi) logout(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	if err = api.svc.Logout(ctx.Request().Context(), sess); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) me(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}
	return ctx.JSON(http.StatusOK, sess.User)
}

func (api *authApi) updatePassword(ctx echo.Context) error {
	sess, err := getContextSession(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context session")
	}

	var data user.PasswordUpdate
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordUpdate")
	}
	if err = api.svc.UpdatePassword(ctx.Request().Context(), sess, data); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been updated."})
}
