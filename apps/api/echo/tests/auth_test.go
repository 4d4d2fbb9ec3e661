package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trackmyacademy/dashboard/apps/api/echo"
	"github.com/trackmyacademy/dashboard/core/user"
)

var (
	superAdmin = user.User{ID: "u-root", Email: "root@trackmyacademy.io", Name: "Root", Role: user.RoleSuperAdmin}
	admin      = user.User{ID: "u-admin", Email: "admin@bluelions.io", Name: "Alice Admin", Role: user.RoleAdmin, AcademyID: "a-lions"}
	coach      = user.User{ID: "u-coach", Email: "coach@bluelions.io", Name: "Carl Coach", Role: user.RoleCoach, AcademyID: "a-lions"}
	student    = user.User{ID: "u-student", Email: "sam@bluelions.io", Name: "Sam Student", Role: user.RoleStudent, AcademyID: "a-lions"}
)

func Test_authApi_login(t *testing.T) {
	e := setup(t)
	e.addUser(t, admin)

	tests := []httpTest{
		{
			name:     "invalid payload",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, user.Credentials{Email: "admin-at-bluelions"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{
				"email":    "email must be a valid email address",
				"password": "this field is required",
			}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, user.Credentials{Email: admin.Email, Password: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: user.ErrInvalidCredentials.Error()}),
		},
		{
			name:     "unknown email",
			method:   http.MethodPost,
			path:     "/v1/auth/login",
			body:     marshallObj(t, user.Credentials{Email: "ghost@bluelions.io", Password: testPassword}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: user.ErrInvalidCredentials.Error()}),
		},
	}
	runHTTPTests(t, e, tests)

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", marshallObj(t, user.Credentials{Email: "  ADMIN@bluelions.io ", Password: testPassword}))
		e.do(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
			User      user.User `json:"user"`
		}
		decode(t, rec, &res)
		assert.NotEmpty(t, res.Token)
		assert.Equal(t, admin, res.User)

		sess, err := e.sessions.GetSession(context.Background(), res.Token)
		require.NoError(t, err)
		assert.Equal(t, admin.ID, sess.UserID)
		assert.NotEqual(t, res.Token, sess.AccessToken, "identity tokens never leave the server")
	})
}

func Test_authApi_sessionLifecycle(t *testing.T) {
	e := setup(t)
	e.addUser(t, coach)
	token := e.login(t, coach)

	tests := []httpTest{
		{
			name:     "me without token",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errUnauthorized),
		},
		{
			name:     "me with unknown token",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			token:    "not-a-session",
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errUnauthorized),
		},
		{
			name:     "me",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			token:    token,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, coach),
		},
		{
			name:     "logout",
			method:   http.MethodPost,
			path:     "/v1/auth/logout",
			token:    token,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "me after logout",
			method:   http.MethodGet,
			path:     "/v1/auth/me",
			token:    token,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errUnauthorized),
		},
	}
	runHTTPTests(t, e, tests)
}

func Test_authApi_signUp(t *testing.T) {
	e := setup(t)

	valid := user.SignUp{
		Name:            "Nina New",
		Email:           "nina@bluelions.io",
		Password:        "Tr4ining!Day",
		PasswordConfirm: "Tr4ining!Day",
		Role:            user.RoleCoach,
		AcademyID:       "a-lions",
	}
	invalid := valid
	invalid.Role = user.RoleSuperAdmin
	invalid.PasswordConfirm = "other"

	t.Run("invalid payload never reaches the backend", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, invalid))
		e.do(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Equal(t, "invalid role", fldErrs["role"])
		assert.Contains(t, fldErrs, "password_confirm")
		assertNoBackendCall(t, e, http.MethodPost, "/api/auth/signup")
	})

	t.Run("success", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, valid))
		e.do(req, rec)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var usr user.User
		decode(t, rec, &usr)
		assert.NotEmpty(t, usr.ID)
		assert.Equal(t, "nina@bluelions.io", usr.Email)
		assert.Equal(t, user.RoleCoach, usr.Role)
	})

	t.Run("duplicate email is shown verbatim", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/signup", marshallObj(t, valid))
		e.do(req, rec)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"error": "Email already registered"}`, rec.Body.String())
	})
}

func Test_authApi_passwordReset(t *testing.T) {
	e := setup(t)
	e.addUser(t, student)

	success := "If the email address supplied is associated with an account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."

	tests := []httpTest{
		{
			name:     "invalid email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "sam"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email": "email must be a valid email address"}`),
		},
		{
			name:     "unknown email looks the same",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "ghost@bluelions.io"}`),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SuccessResponse{Success: success}),
		},
		{
			name:     "known email",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset",
			body:     []byte(`{"email": "sam@bluelions.io"}`),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SuccessResponse{Success: success}),
		},
	}
	runHTTPTests(t, e, tests)

	sent := e.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	recoveryToken := sent[0].TemplateData.(map[string]interface{})["Token"].(string)
	assert.Contains(t, sent[0].TextContent, recoveryToken)

	newPassword := "N3w!Password"
	confirmTests := []httpTest{
		{
			name:     "bad token",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset/confirm",
			body:     marshallObj(t, user.PasswordResetConfirm{Email: student.Email, Token: "bogus-token", Password: newPassword, PasswordConfirm: newPassword}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"token": "invalid or expired token"}`),
		},
		{
			name:     "weak password",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset/confirm",
			body:     marshallObj(t, user.PasswordResetConfirm{Email: student.Email, Token: recoveryToken, Password: "12345678", PasswordConfirm: "12345678"}),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password": "password cannot be entirely numeric"}`),
		},
		{
			name:     "success",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset/confirm",
			body:     marshallObj(t, user.PasswordResetConfirm{Email: student.Email, Token: recoveryToken, Password: newPassword, PasswordConfirm: newPassword}),
			wantCode: http.StatusOK,
			wantData: marshallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name:     "token is single use",
			method:   http.MethodPost,
			path:     "/v1/auth/password-reset/confirm",
			body:     marshallObj(t, user.PasswordResetConfirm{Email: student.Email, Token: recoveryToken, Password: newPassword, PasswordConfirm: newPassword}),
			wantCode: http.StatusBadRequest,
		},
	}
	runHTTPTests(t, e, confirmTests)

	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marshallObj(t, user.Credentials{Email: student.Email, Password: newPassword}))
	assert.Equal(t, http.StatusOK, e.do(req, rec).Code, "signing in with the new password")
}

func Test_authApi_updatePassword(t *testing.T) {
	e := setup(t)
	e.addUser(t, admin)
	token := e.login(t, admin)

	tests := []httpTest{
		{
			name:     "unauthenticated",
			method:   http.MethodPut,
			path:     "/v1/auth/password",
			body:     []byte(`{"password": "Acad3my!Next", "password_confirm": "Acad3my!Next"}`),
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errUnauthorized),
		},
		{
			name:     "too similar to the user",
			method:   http.MethodPut,
			path:     "/v1/auth/password",
			token:    token,
			body:     []byte(`{"password": "AliceAdmin1!", "password_confirm": "AliceAdmin1!"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"password": "password cannot be similar to user attributes"}`),
		},
		{
			name:     "success",
			method:   http.MethodPut,
			path:     "/v1/auth/password",
			token:    token,
			body:     []byte(`{"password": "Acad3my!Next", "password_confirm": "Acad3my!Next"}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{"success": "Password has been updated."}`),
		},
	}
	runHTTPTests(t, e, tests)
}

func Test_authApi_queryRoles(t *testing.T) {
	e := setup(t)
	runHTTPTests(t, e, []httpTest{{
		name:     "roles",
		method:   http.MethodGet,
		path:     "/v1/auth/roles",
		wantCode: http.StatusOK,
		wantData: marshallObj(t, user.Roles),
	}})
}
