package user

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
)

type (
	// TokenStore persists the access token between runs.
	TokenStore interface {
		// LoadToken returns "" if no token was saved.
		LoadToken() (string, error)
		SaveToken(token string) error
		ClearToken() error
	}

	// State is a snapshot of the auth state. Ready is false until Init completed.
	State struct {
		User  User
		Token string
		Ready bool
	}

	// Store holds the current user and access token of a client, and notifies listeners of every change.
	// It talks to the identity provider and the backend directly, without a server-side Session.
	Store struct {
		tokens   TokenStore
		idp      Identity
		dir      Directory
		validate *validator.Validate

		mu        sync.RWMutex
		state     State
		listeners map[int]func(State)
		nextID    int
	}
)

func NewStore(tokens TokenStore, idp Identity, dir Directory, validate *validator.Validate) *Store {
	return &Store{
		tokens:    tokens,
		idp:       idp,
		dir:       dir,
		validate:  validate,
		listeners: make(map[int]func(State)),
	}
}

// State returns the current auth state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Authenticated reports whether a user is signed in.
func (s *Store) Authenticated() bool {
	st := s.State()
	return st.Token != ""
}

// Subscribe registers `fn` to be called with the new State on every change.
// The returned func unsubscribes it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Close drops every listener.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[int]func(State))
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	fns := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Init restores the persisted session: the saved token is checked with the identity provider and
// the user's profile fetched from the backend. A token failing either step is cleared.
// Only non-auth failures are returned; the Store is Ready either way.
func (s *Store) Init(ctx context.Context) error {
	token, err := s.tokens.LoadToken()
	if err != nil {
		s.setState(State{Ready: true})
		return errors.Wrap(err, "loading token")
	}
	if token == "" {
		s.setState(State{Ready: true})
		return nil
	}

	usr, err := s.restore(ctx, token)
	if err != nil {
		if cErr := s.tokens.ClearToken(); cErr != nil {
			err = errors.Wrapf(err, "clearing token: %v", cErr)
		}
		s.setState(State{Ready: true})
		if core.IsUnauthorized(err) {
			return nil
		}
		return err
	}

	s.setState(State{User: usr, Token: token, Ready: true})
	return nil
}

func (s *Store) restore(ctx context.Context, token string) (User, error) {
	if _, err := s.idp.GetUser(ctx, token); err != nil {
		return User{}, errors.Wrap(err, "retrieving identity session")
	}
	usr, err := s.dir.Me(ctx, token)
	if err != nil {
		return User{}, errors.Wrap(err, "getting current user")
	}
	return usr, nil
}

// SignIn signs in with the identity provider, fetches the user's profile and persists the access token.
func (s *Store) SignIn(ctx context.Context, creds Credentials) (User, error) {
	if err := creds.Validate(s.validate); err != nil {
		return User{}, err
	}

	tokens, err := s.idp.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		if errors.Cause(err) == ErrInvalidCredentials {
			return User{}, core.NewValidationError(ErrInvalidCredentials)
		}
		return User{}, errors.Wrap(err, "signing in")
	}
	usr, err := s.dir.Me(ctx, tokens.AccessToken)
	if err != nil {
		return User{}, errors.Wrap(err, "getting current user")
	}
	if err = s.tokens.SaveToken(tokens.AccessToken); err != nil {
		return User{}, errors.Wrap(err, "saving token")
	}

	s.setState(State{User: usr, Token: tokens.AccessToken, Ready: true})
	return usr, nil
}

// SignUp registers a new account through the backend. It does not sign in.
func (s *Store) SignUp(ctx context.Context, su SignUp) (User, error) {
	if err := su.Validate(s.validate); err != nil {
		return User{}, err
	}
	usr, err := s.dir.SignUp(ctx, su)
	return usr, errors.Wrap(err, "signing up")
}

// SignOut signs out of the identity provider and clears the persisted token.
// The local state is cleared even if the identity provider could not be reached.
func (s *Store) SignOut(ctx context.Context) error {
	token := s.State().Token

	var err error
	if token != "" {
		err = errors.Wrap(s.idp.SignOut(ctx, token), "signing out")
	}
	if cErr := s.tokens.ClearToken(); cErr != nil && err == nil {
		err = errors.Wrap(cErr, "clearing token")
	}
	s.setState(State{Ready: true})
	return err
}

// Forget clears the persisted token and the local state without calling the identity provider.
// It is meant for tokens the backend already rejected.
func (s *Store) Forget() error {
	err := s.tokens.ClearToken()
	s.setState(State{Ready: true})
	return errors.Wrap(err, "clearing token")
}

// RequestPasswordReset asks the identity provider to email a recovery link.
// An unknown email is not an error.
func (s *Store) RequestPasswordReset(ctx context.Context, pr PasswordResetRequest) error {
	if err := pr.Validate(s.validate); err != nil {
		return err
	}
	if err := s.idp.RequestPasswordReset(ctx, pr.Email); err != nil && errors.Cause(err) != core.ErrNotFound {
		return errors.Wrap(err, "requesting password reset")
	}
	return nil
}

// UpdatePassword sets a new password for the signed-in user.
func (s *Store) UpdatePassword(ctx context.Context, pu PasswordUpdate) error {
	st := s.State()
	if st.Token == "" {
		return core.ErrUnauthorized
	}
	if err := pu.Validate(s.validate, st.User); err != nil {
		return err
	}
	return errors.Wrap(s.idp.UpdatePassword(ctx, st.Token, pu.Password), "updating password")
}
