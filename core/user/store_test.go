package user

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackmyacademy/dashboard/core"
)

func newTestStore(token string) (*Store, *fakeIdentity, *fakeDirectory, *memTokens) {
	idp := newFakeIdentity(testEmail, testPassword)
	dir := &fakeDirectory{idp: idp, usr: testUser}
	tokens := &memTokens{token: token}
	return NewStore(tokens, idp, dir, newValidate()), idp, dir, tokens
}

func TestStore_Init(t *testing.T) {
	ctx := context.Background()

	t.Run("no persisted token", func(t *testing.T) {
		store, _, _, _ := newTestStore("")
		require.NoError(t, store.Init(ctx))
		assert.Equal(t, State{Ready: true}, store.State())
		assert.False(t, store.Authenticated())
	})

	t.Run("valid persisted token", func(t *testing.T) {
		store, idp, _, tokens := newTestStore("")
		live, err := idp.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		tokens.token = live.AccessToken

		require.NoError(t, store.Init(ctx))
		assert.Equal(t, State{User: testUser, Token: live.AccessToken, Ready: true}, store.State())
		assert.Equal(t, live.AccessToken, tokens.token)
	})

	t.Run("rejected persisted token is cleared", func(t *testing.T) {
		store, _, _, tokens := newTestStore("stale")
		require.NoError(t, store.Init(ctx))
		assert.Equal(t, State{Ready: true}, store.State())
		assert.Empty(t, tokens.token)
	})

	t.Run("backend failure clears the token and is reported", func(t *testing.T) {
		store, idp, dir, tokens := newTestStore("")
		live, err := idp.SignIn(ctx, testEmail, testPassword)
		require.NoError(t, err)
		tokens.token = live.AccessToken
		dir.err = core.NewTransportError("backend", 0, errors.New("connection refused"))

		err = store.Init(ctx)
		_, ok := errors.Cause(err).(*core.TransportError)
		assert.True(t, ok, "got %v", err)
		assert.Equal(t, State{Ready: true}, store.State())
		assert.Empty(t, tokens.token)
	})
}

func TestStore_SignInSignOut(t *testing.T) {
	ctx := context.Background()
	store, idp, _, tokens := newTestStore("")
	require.NoError(t, store.Init(ctx))

	var got []State
	unsubscribe := store.Subscribe(func(st State) { got = append(got, st) })

	_, err := store.SignIn(ctx, Credentials{Email: testEmail, Password: "wrong"})
	_, ok := errors.Cause(err).(*core.ValidationError)
	assert.True(t, ok, "got %v", err)
	assert.Empty(t, got)

	usr, err := store.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, testUser, usr)
	assert.Equal(t, "access-1", tokens.token)
	assert.True(t, store.Authenticated())

	require.NoError(t, store.SignOut(ctx))
	assert.Empty(t, tokens.token)
	assert.Equal(t, 1, idp.signOuts)

	if assert.Len(t, got, 2) {
		assert.Equal(t, State{User: testUser, Token: "access-1", Ready: true}, got[0])
		assert.Equal(t, State{Ready: true}, got[1])
	}

	unsubscribe()
	unsubscribe() // no-op
	_, err = store.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_SignOutClearsStateOnIdentityFailure(t *testing.T) {
	ctx := context.Background()
	store, idp, _, tokens := newTestStore("")
	_, err := store.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	idp.signOutErr = core.NewTransportError("identity", 502, nil)
	assert.Error(t, store.SignOut(ctx))
	assert.Empty(t, tokens.token)
	assert.False(t, store.Authenticated())
}

func TestStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, idp, _, tokens := newTestStore("")
	_, err := store.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, store.Forget())
	assert.Empty(t, tokens.token)
	assert.False(t, store.Authenticated())
	assert.Zero(t, idp.signOuts)
}

func TestStore_Close(t *testing.T) {
	ctx := context.Background()
	store, _, _, _ := newTestStore("")

	calls := 0
	store.Subscribe(func(State) { calls++ })
	store.Close()

	require.NoError(t, store.Init(ctx))
	assert.Zero(t, calls)
}

func TestStore_PasswordFlows(t *testing.T) {
	ctx := context.Background()
	store, idp, dir, _ := newTestStore("")
	newPwd := "N3w!Secret#Pwd"

	assert.Equal(t, core.ErrUnauthorized, store.UpdatePassword(ctx, PasswordUpdate{Password: newPwd, PasswordConfirm: newPwd}))

	_, err := store.SignIn(ctx, Credentials{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	assert.Error(t, store.UpdatePassword(ctx, PasswordUpdate{Password: newPwd, PasswordConfirm: "typo"}))
	require.NoError(t, store.UpdatePassword(ctx, PasswordUpdate{Password: newPwd, PasswordConfirm: newPwd}))
	assert.Equal(t, newPwd, idp.password)

	require.NoError(t, store.RequestPasswordReset(ctx, PasswordResetRequest{Email: testEmail}))
	assert.Equal(t, []string{testEmail}, idp.resetReqs)

	_, err = store.SignUp(ctx, SignUp{Name: "Kid", Email: "kid@academy.io", Password: newPwd, PasswordConfirm: newPwd, Role: RoleStudent})
	require.NoError(t, err)
	assert.Len(t, dir.signUps, 1)
}
