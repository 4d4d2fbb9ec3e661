package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackmyacademy/dashboard/core"
)

const (
	testEmail    = "jane@academy.io"
	testPassword = "Str0ng!Pass#2025"
)

var testUser = User{ID: "u1", Email: testEmail, Name: "Jane Coach", Role: RoleCoach, AcademyID: "a1"}

func setup(t *testing.T) (*Service, *fakeIdentity, *fakeDirectory, *memSessions) {
	t.Helper()
	idp := newFakeIdentity(testEmail, testPassword)
	dir := &fakeDirectory{idp: idp, usr: testUser}
	sessions := newMemSessions()
	svc := NewService(core.NewTestConfig(), sessions, idp, dir, newValidate(), nopLogger{})
	return svc, idp, dir, sessions
}

func mockNow(t *testing.T, now time.Time) {
	t.Helper()
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })
}

func TestService_Login(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	mockNow(t, now)

	t.Run("success", func(t *testing.T) {
		svc, _, _, sessions := setup(t)

		sess, err := svc.Login(context.Background(), Credentials{Email: " JANE@academy.io ", Password: testPassword})
		require.NoError(t, err)

		_, err = uuid.Parse(sess.ID)
		assert.NoError(t, err)
		assert.Equal(t, testUser, sess.User)
		assert.Equal(t, testUser.ID, sess.UserID)
		assert.Equal(t, "access-1", sess.AccessToken)
		assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)
		assert.Equal(t, now, sess.CreatedAt)

		stored, err := sessions.GetSession(context.Background(), sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess, stored)
	})

	t.Run("invalid payload never reaches the identity provider", func(t *testing.T) {
		svc, idp, _, _ := setup(t)

		_, err := svc.Login(context.Background(), Credentials{Email: "not-an-email"})
		_, ok := errors.Cause(err).(validator.ValidationErrors)
		assert.True(t, ok, "got %v", err)
		assert.Zero(t, idp.issued)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, _, _, sessions := setup(t)

		_, err := svc.Login(context.Background(), Credentials{Email: testEmail, Password: "nope"})
		vErr, ok := errors.Cause(err).(*core.ValidationError)
		if assert.True(t, ok, "got %v", err) {
			assert.Equal(t, ErrInvalidCredentials, vErr.Err)
		}
		assert.Empty(t, sessions.sessions)
	})

	t.Run("profile lookup rejected", func(t *testing.T) {
		svc, _, dir, sessions := setup(t)
		dir.err = core.ErrForbidden

		_, err := svc.Login(context.Background(), Credentials{Email: testEmail, Password: testPassword})
		assert.Equal(t, core.ErrForbidden, errors.Cause(err))
		assert.Empty(t, sessions.sessions)
	})
}

func TestService_Authenticate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	login := func(t *testing.T, svc *Service) Session {
		t.Helper()
		sess, err := svc.Login(ctx, Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)
		return sess
	}

	t.Run("empty and unknown tokens", func(t *testing.T) {
		mockNow(t, now)
		svc, _, _, _ := setup(t)

		for _, token := range []string{"", "unknown"} {
			_, err := svc.Authenticate(ctx, token)
			assert.Equal(t, core.ErrUnauthorized, err, "token %q", token)
		}
	})

	t.Run("live session", func(t *testing.T) {
		mockNow(t, now)
		svc, _, _, _ := setup(t)
		sess := login(t, svc)

		got, err := svc.Authenticate(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess, got)
	})

	t.Run("expired session is deleted", func(t *testing.T) {
		mockNow(t, now)
		svc, _, _, sessions := setup(t)
		sess := login(t, svc)

		mockNow(t, now.Add(time.Hour))
		_, err := svc.Authenticate(ctx, sess.ID)
		assert.Equal(t, core.ErrUnauthorized, err)
		assert.NotContains(t, sessions.sessions, sess.ID)
	})

	t.Run("expired access token is refreshed", func(t *testing.T) {
		mockNow(t, now)
		svc, idp, _, sessions := setup(t)
		idp.expiresIn = 10 * time.Minute
		sess := login(t, svc)

		mockNow(t, now.Add(10*time.Minute))
		got, err := svc.Authenticate(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.Equal(t, "access-2", sessions.sessions[sess.ID].AccessToken)
	})

	t.Run("rejected refresh token ends the session", func(t *testing.T) {
		mockNow(t, now)
		svc, idp, _, sessions := setup(t)
		idp.expiresIn = 10 * time.Minute
		sess := login(t, svc)

		idp.refreshErr = core.ErrUnauthorized
		mockNow(t, now.Add(20*time.Minute))
		_, err := svc.Authenticate(ctx, sess.ID)
		assert.Equal(t, core.ErrUnauthorized, err)
		assert.NotContains(t, sessions.sessions, sess.ID)
	})
}

func TestService_Authenticate_concurrentRefresh(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("requests racing on an expired access token share one refresh", func(t *testing.T) {
		mockNow(t, now)
		svc, idp, _, sessions := setup(t)
		idp.expiresIn = 10 * time.Minute
		sess, err := svc.Login(ctx, Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)

		entered := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		idp.onRefresh = func() {
			once.Do(func() { close(entered) })
			<-release
		}

		mockNow(t, now.Add(10*time.Minute))
		const n = 4
		var wg sync.WaitGroup
		got := make([]Session, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				got[i], errs[i] = svc.Authenticate(ctx, sess.ID)
			}(i)
			if i == 0 {
				<-entered
			}
		}
		time.Sleep(20 * time.Millisecond) // let the others queue up behind the first refresh
		close(release)
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i], "request %d", i)
			assert.Equal(t, "access-2", got[i].AccessToken, "request %d", i)
		}
		assert.Equal(t, 1, idp.refreshes)
		require.Contains(t, sessions.sessions, sess.ID)

		again, err := svc.Authenticate(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-2", again.AccessToken)
	})

	t.Run("refresh token rotated elsewhere keeps the session", func(t *testing.T) {
		mockNow(t, now)
		svc, idp, _, sessions := setup(t)
		idp.expiresIn = 10 * time.Minute
		sess, err := svc.Login(ctx, Credentials{Email: testEmail, Password: testPassword})
		require.NoError(t, err)

		rotated := Tokens{AccessToken: "access-x", RefreshToken: "refresh-x", ExpiresAt: now.Add(time.Hour)}
		idp.refreshErr = core.ErrUnauthorized
		idp.onRefresh = func() {
			require.NoError(t, sessions.UpdateSessionTokens(ctx, sess.ID, rotated))
		}

		mockNow(t, now.Add(10*time.Minute))
		got, err := svc.Authenticate(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "access-x", got.AccessToken)
		assert.Contains(t, sessions.sessions, sess.ID)
	})
}

func TestService_LogoutAndInvalidate(t *testing.T) {
	ctx := context.Background()
	svc, idp, _, sessions := setup(t)

	sess, err := svc.Login(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	idp.signOutErr = core.NewTransportError("identity", 503, nil)
	require.NoError(t, svc.Logout(ctx, sess))
	assert.Equal(t, 1, idp.signOuts)
	assert.Empty(t, sessions.sessions)

	// already gone
	assert.NoError(t, svc.Logout(ctx, sess))
	svc.Invalidate(ctx, sess.ID)
}

func TestService_SignUp(t *testing.T) {
	svc, _, dir, _ := setup(t)

	su := SignUp{Name: " New Coach ", Email: "NEW@academy.io", Password: testPassword, PasswordConfirm: testPassword, Role: "Coach"}
	usr, err := svc.SignUp(context.Background(), su)
	require.NoError(t, err)
	assert.Equal(t, User{ID: "new", Email: "new@academy.io", Name: "New Coach", Role: RoleCoach}, usr)

	su.Role = RoleSuperAdmin
	_, err = svc.SignUp(context.Background(), su)
	assert.Error(t, err)
	assert.Len(t, dir.signUps, 1)
}

func TestService_RequestPasswordReset(t *testing.T) {
	svc, idp, _, _ := setup(t)
	ctx := context.Background()

	assert.NoError(t, svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: testEmail}))
	assert.NoError(t, svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "ghost@academy.io"}))
	assert.Error(t, svc.RequestPasswordReset(ctx, PasswordResetRequest{Email: "ghost"}))
	assert.Equal(t, []string{testEmail, "ghost@academy.io"}, idp.resetReqs)
}

func TestService_ConfirmPasswordReset(t *testing.T) {
	svc, idp, _, _ := setup(t)
	ctx := context.Background()
	newPwd := "N3w!Secret#Pwd"

	err := svc.ConfirmPasswordReset(ctx, PasswordResetConfirm{Email: testEmail, Token: "bad", Password: newPwd, PasswordConfirm: newPwd})
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if assert.True(t, ok, "got %v", err) {
		assert.Equal(t, []core.FieldError{{Field: "token", Error: ErrInvalidToken.Error()}}, vErr.Fields)
	}

	require.NoError(t, svc.ConfirmPasswordReset(ctx, PasswordResetConfirm{Email: testEmail, Token: "rcv", Password: newPwd, PasswordConfirm: newPwd}))
	assert.Equal(t, newPwd, idp.password)
	assert.Equal(t, 1, idp.signOuts)
}

func TestService_UpdatePassword(t *testing.T) {
	svc, idp, _, _ := setup(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	err = svc.UpdatePassword(ctx, sess, PasswordUpdate{Password: "weakpassword", PasswordConfirm: "weakpassword"})
	vErrs, ok := errors.Cause(err).(validator.ValidationErrors)
	if assert.True(t, ok, "got %v", err) {
		assert.Equal(t, pwdComplexityTag, vErrs[0].Tag())
	}
	assert.Equal(t, testPassword, idp.password)

	newPwd := "An0ther!Strong#1"
	require.NoError(t, svc.UpdatePassword(ctx, sess, PasswordUpdate{Password: newPwd, PasswordConfirm: newPwd}))
	assert.Equal(t, newPwd, idp.password)
}

func TestService_PurgeExpired(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	svc, _, _, sessions := setup(t)

	for i, createdAt := range []time.Time{now.Add(-2 * time.Hour), now.Add(-30 * time.Minute), now.Add(-time.Hour)} {
		sess := Session{ID: string(rune('a' + i)), CreatedAt: createdAt, ExpiresAt: createdAt.Add(time.Hour)}
		require.NoError(t, sessions.CreateSession(ctx, sess))
	}

	mockNow(t, now)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Contains(t, sessions.sessions, "b")
}
