package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trackmyacademy/dashboard/core"
)

func newValidate() *validator.Validate {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	InitValidators(validate, translator)
	return validate
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeIdentity knows one account and hands out numbered tokens.
type fakeIdentity struct {
	mu         sync.Mutex
	email      string
	password   string
	live       map[string]bool // access tokens
	issued     int
	expiresIn  time.Duration
	refreshErr error
	refreshed  map[string]bool // spent refresh tokens
	refreshes  int
	onRefresh  func() // runs before Refresh answers, without the lock
	signOutErr error
	resetReqs  []string
	recovery   string // valid recovery token
	signOuts   int
}

func newFakeIdentity(email, password string) *fakeIdentity {
	return &fakeIdentity{email: email, password: password, live: make(map[string]bool), refreshed: make(map[string]bool), expiresIn: time.Hour, recovery: "rcv"}
}

func (f *fakeIdentity) issue() Tokens {
	f.issued++
	access := fmt.Sprintf("access-%d", f.issued)
	f.live[access] = true
	return Tokens{AccessToken: access, RefreshToken: "refresh-" + access, ExpiresAt: NowFunc().Add(f.expiresIn)}
}

func (f *fakeIdentity) SignIn(_ context.Context, email, password string) (Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email != f.email || password != f.password {
		return Tokens{}, ErrInvalidCredentials
	}
	return f.issue(), nil
}

// Refresh accepts each refresh token once, like GoTrue's rotation.
func (f *fakeIdentity) Refresh(_ context.Context, refreshToken string) (Tokens, error) {
	if f.onRefresh != nil {
		f.onRefresh()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return Tokens{}, f.refreshErr
	}
	if f.refreshed[refreshToken] {
		return Tokens{}, core.ErrUnauthorized
	}
	f.refreshed[refreshToken] = true
	return f.issue(), nil
}

func (f *fakeIdentity) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	delete(f.live, accessToken)
	return f.signOutErr
}

func (f *fakeIdentity) GetUser(_ context.Context, accessToken string) (Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[accessToken] {
		return Account{}, core.ErrUnauthorized
	}
	return Account{ID: "u1", Email: f.email}, nil
}

func (f *fakeIdentity) RequestPasswordReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetReqs = append(f.resetReqs, email)
	if email != f.email {
		return core.ErrNotFound
	}
	return nil
}

func (f *fakeIdentity) VerifyRecovery(_ context.Context, email, token string) (Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email != f.email || token != f.recovery {
		return Tokens{}, ErrInvalidToken
	}
	return f.issue(), nil
}

func (f *fakeIdentity) UpdatePassword(_ context.Context, accessToken, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[accessToken] {
		return core.ErrUnauthorized
	}
	f.password = password
	return nil
}

// fakeDirectory resolves every live token of `idp` to `usr`.
type fakeDirectory struct {
	idp     *fakeIdentity
	usr     User
	err     error
	signUps []SignUp
}

func (d *fakeDirectory) Me(ctx context.Context, token string) (User, error) {
	if d.err != nil {
		return User{}, d.err
	}
	if _, err := d.idp.GetUser(ctx, token); err != nil {
		return User{}, err
	}
	return d.usr, nil
}

func (d *fakeDirectory) SignUp(_ context.Context, su SignUp) (User, error) {
	d.signUps = append(d.signUps, su)
	return User{ID: "new", Email: su.Email, Name: su.Name, Role: su.Role}, nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]Session)}
}

func (m *memSessions) CreateSession(_ context.Context, sess Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
	return nil
}

func (m *memSessions) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (m *memSessions) UpdateSessionTokens(_ context.Context, id string, tokens Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.AccessToken, sess.RefreshToken, sess.TokenExpiresAt = tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt
	m.sessions[id] = sess
	return nil
}

func (m *memSessions) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *memSessions) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sess := range m.sessions {
		if sess.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type memTokens struct {
	token   string
	loadErr error
}

func (m *memTokens) LoadToken() (string, error) { return m.token, m.loadErr }
func (m *memTokens) SaveToken(token string) error {
	m.token = token
	return nil
}
func (m *memTokens) ClearToken() error {
	m.token = ""
	return nil
}
