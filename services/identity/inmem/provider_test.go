package inmemidentity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

func (m *recordingMailer) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

const (
	testEmail    = "jane@academy.io"
	testPassword = "Str0ng!Pass#2025"
)

func setup(t *testing.T) (*Provider, *recordingMailer) {
	mailer := new(recordingMailer)
	p := NewProvider(core.NewTestConfig(), mailer, nopLogger{})
	require.NoError(t, p.AddAccount("u1", " Jane@Academy.io ", "Jane Coach", testPassword))
	return p, mailer
}

func TestMakeVerifyRecoveryToken(t *testing.T) {
	secret := []byte("secret")
	now := time.Now()
	acc := account{ID: "u1", Email: testEmail, PasswordHash: []byte("hash"), LastSignIn: now}

	validToken := makeRecoveryToken(acc, secret, now)
	dayLate := RecoveryTimeout + 24*time.Hour
	expiredToken := makeRecoveryToken(acc, secret, now.Add(-dayLate))

	changed := acc
	changed.PasswordHash = []byte("new-hash")

	tests := []struct {
		name    string
		acc     account
		token   string
		wantErr error
	}{
		{name: "no token", acc: acc, wantErr: errInvalidToken},
		{name: "invalid parts len", acc: acc, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", acc: acc, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", acc: acc, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", acc: acc, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", acc: acc, token: expiredToken, wantErr: errTokenExpired},
		{name: "password changed", acc: changed, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", acc: acc, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, verifyRecoveryToken(tt.acc, secret, tt.token, now))
		})
	}
}

func TestProvider_AddAccount(t *testing.T) {
	p, _ := setup(t)
	err := p.AddAccount("u2", testEmail, "Other", testPassword)
	assert.Equal(t, &core.RejectionError{StatusCode: 422, Message: "User already registered"}, err)
}

func TestProvider_signInFlow(t *testing.T) {
	p, _ := setup(t)
	ctx := context.Background()

	_, err := p.SignIn(ctx, testEmail, "wrong")
	assert.Equal(t, user.ErrInvalidCredentials, err)
	_, err = p.SignIn(ctx, "nobody@academy.io", testPassword)
	assert.Equal(t, user.ErrInvalidCredentials, err)

	tokens, err := p.SignIn(ctx, "JANE@academy.io", testPassword)
	require.NoError(t, err)
	assert.True(t, tokens.ExpiresAt.After(time.Now()))

	acc, err := p.GetUser(ctx, tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.Account{ID: "u1", Email: testEmail}, acc)

	// refresh tokens are single use
	refreshed, err := p.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	_, err = p.Refresh(ctx, tokens.RefreshToken)
	assert.Equal(t, core.ErrUnauthorized, err)

	require.NoError(t, p.SignOut(ctx, refreshed.AccessToken))
	_, err = p.GetUser(ctx, refreshed.AccessToken)
	assert.Equal(t, core.ErrUnauthorized, err)
	_, err = p.Refresh(ctx, refreshed.RefreshToken)
	assert.Equal(t, core.ErrUnauthorized, err)

	// the first access token was not signed out
	_, err = p.GetUser(ctx, tokens.AccessToken)
	assert.NoError(t, err)

	_, err = p.GetUser(ctx, "forged")
	assert.Equal(t, core.ErrUnauthorized, err)
}

func TestProvider_passwordRecovery(t *testing.T) {
	p, mailer := setup(t)
	ctx := context.Background()

	assert.Equal(t, core.ErrNotFound, p.RequestPasswordReset(ctx, "nobody@academy.io"))
	assert.Empty(t, mailer.sent)

	require.NoError(t, p.RequestPasswordReset(ctx, testEmail))
	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, testEmail, msg.To[0].Address)
	assert.Equal(t, passwordResetTemplate, msg.TemplateName)
	token := msg.TemplateData.(map[string]interface{})["Token"].(string)

	_, err := p.VerifyRecovery(ctx, testEmail, "bogus-token")
	assert.Equal(t, user.ErrInvalidToken, err)
	_, err = p.VerifyRecovery(ctx, "nobody@academy.io", token)
	assert.Equal(t, user.ErrInvalidToken, err)

	tokens, err := p.VerifyRecovery(ctx, testEmail, token)
	require.NoError(t, err)
	require.NoError(t, p.UpdatePassword(ctx, tokens.AccessToken, "N3w!Password"))

	// the recovery token dies with the old password
	_, err = p.VerifyRecovery(ctx, testEmail, token)
	assert.Equal(t, user.ErrInvalidToken, err)

	_, err = p.SignIn(ctx, testEmail, testPassword)
	assert.Equal(t, user.ErrInvalidCredentials, err)
	_, err = p.SignIn(ctx, testEmail, "N3w!Password")
	assert.NoError(t, err)

	assert.Equal(t, core.ErrUnauthorized, p.UpdatePassword(ctx, "forged", "N3w!Password"))
}
