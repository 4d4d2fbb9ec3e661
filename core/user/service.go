package user

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trackmyacademy/dashboard/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrSessionNotFound    = errors.New("session not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")

	// access tokens are refreshed this long before they expire
	refreshLeeway = 30 * time.Second
)

type (
	// Account is the identity provider's view of a user.
	Account struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}

	// Identity is the third-party identity provider.
	Identity interface {
		SignIn(ctx context.Context, email, password string) (Tokens, error)
		Refresh(ctx context.Context, refreshToken string) (Tokens, error)
		SignOut(ctx context.Context, accessToken string) error
		GetUser(ctx context.Context, accessToken string) (Account, error)
		RequestPasswordReset(ctx context.Context, email string) error
		VerifyRecovery(ctx context.Context, email, token string) (Tokens, error)
		UpdatePassword(ctx context.Context, accessToken, password string) error
	}

	// Directory resolves user profiles (role, academy) from the backend.
	Directory interface {
		Me(ctx context.Context, token string) (User, error)
		SignUp(ctx context.Context, su SignUp) (User, error)
	}

	SessionRepository interface {
		CreateSession(ctx context.Context, sess Session) error
		// GetSession returns ErrSessionNotFound if there is no session with this id.
		GetSession(ctx context.Context, id string) (Session, error)
		UpdateSessionTokens(ctx context.Context, id string, tokens Tokens) error
		DeleteSession(ctx context.Context, id string) error
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	// Service manages server-side sign-in sessions.
	Service struct {
		sessions SessionRepository
		idp      Identity
		dir      Directory
		validate *validator.Validate
		logger   core.Logger
		ttl      time.Duration

		// one refresh per session at a time: refresh tokens are single-use
		refreshes singleflight.Group
	}
)

func NewService(
	conf *core.Config,
	sessions SessionRepository,
	idp Identity,
	dir Directory,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		idp:      idp,
		dir:      dir,
		validate: validate,
		logger:   logger,
		ttl:      conf.Server.SessionTTL,
	}
}

// Login signs in with the identity provider, fetches the user's profile and opens a new Session.
func (svc *Service) Login(ctx context.Context, creds Credentials) (Session, error) {
	if err := creds.Validate(svc.validate); err != nil {
		return Session{}, err
	}

	tokens, err := svc.idp.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		if errors.Cause(err) == ErrInvalidCredentials {
			return Session{}, core.NewValidationError(ErrInvalidCredentials)
		}
		return Session{}, errors.Wrap(err, "signing in")
	}

	usr, err := svc.dir.Me(ctx, tokens.AccessToken)
	if err != nil {
		return Session{}, errors.Wrap(err, "getting current user")
	}

	now := NowFunc().UTC()
	sess := Session{
		ID:             uuid.NewString(),
		UserID:         usr.ID,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt.UTC(),
		User:           usr,
		ExpiresAt:      now.Add(svc.ttl),
		CreatedAt:      now,
	}
	if err = svc.sessions.CreateSession(ctx, sess); err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	return sess, nil
}

// Authenticate returns the live Session identified by `token`, refreshing its access token when needed.
// Missing, unknown and expired sessions yield core.ErrUnauthorized.
func (svc *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, core.ErrUnauthorized
	}

	sess, err := svc.sessions.GetSession(ctx, token)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Session{}, core.ErrUnauthorized
		}
		return Session{}, errors.Wrap(err, "getting session")
	}

	now := NowFunc().UTC()
	if sess.Expired(now) {
		svc.Invalidate(ctx, sess.ID)
		return Session{}, core.ErrUnauthorized
	}

	if sess.NeedsRefresh(now.Add(refreshLeeway)) {
		v, err, _ := svc.refreshes.Do(sess.ID, func() (interface{}, error) {
			return svc.refresh(ctx, sess.ID, now)
		})
		if err != nil {
			return Session{}, err
		}
		return v.(Session), nil
	}
	return sess, nil
}

// refresh renews the access token of Session `id`, unless another request already did.
func (svc *Service) refresh(ctx context.Context, id string, now time.Time) (Session, error) {
	sess, err := svc.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrSessionNotFound {
			return Session{}, core.ErrUnauthorized
		}
		return Session{}, errors.Wrap(err, "getting session")
	}
	if !sess.NeedsRefresh(now.Add(refreshLeeway)) {
		return sess, nil
	}

	tokens, err := svc.idp.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		if !core.IsUnauthorized(err) {
			return Session{}, errors.Wrap(err, "refreshing access token")
		}
		// only end the session if the rejected refresh token is still the current one
		current, gErr := svc.sessions.GetSession(ctx, id)
		if gErr == nil && current.RefreshToken != sess.RefreshToken {
			return current, nil
		}
		svc.Invalidate(ctx, id)
		return Session{}, core.ErrUnauthorized
	}

	if err = svc.sessions.UpdateSessionTokens(ctx, id, tokens); err != nil {
		return Session{}, errors.Wrap(err, "updating session tokens")
	}
	sess.AccessToken = tokens.AccessToken
	sess.RefreshToken = tokens.RefreshToken
	sess.TokenExpiresAt = tokens.ExpiresAt.UTC()
	return sess, nil
}

// Logout signs out of the identity provider (best effort) and deletes the Session.
func (svc *Service) Logout(ctx context.Context, sess Session) error {
	if err := svc.idp.SignOut(ctx, sess.AccessToken); err != nil {
		svc.logger.Warn(fmt.Sprintf("identity sign-out: %v", err), err, sess.User)
	}
	if err := svc.sessions.DeleteSession(ctx, sess.ID); err != nil && errors.Cause(err) != ErrSessionNotFound {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

// Invalidate deletes the Session identified by `token`, e.g. once the backend rejected its access token.
func (svc *Service) Invalidate(ctx context.Context, token string) {
	if err := svc.sessions.DeleteSession(ctx, token); err != nil && errors.Cause(err) != ErrSessionNotFound {
		svc.logger.Error(fmt.Sprintf("deleting session: %v", err), err)
	}
}

// SignUp registers a new account through the backend, which assigns the requested role.
func (svc *Service) SignUp(ctx context.Context, su SignUp) (User, error) {
	if err := su.Validate(svc.validate); err != nil {
		return User{}, err
	}
	usr, err := svc.dir.SignUp(ctx, su)
	if err != nil {
		return User{}, errors.Wrap(err, "signing up")
	}
	return usr, nil
}

// RequestPasswordReset asks the identity provider to email a recovery link.
// Only validation errors are returned: callers must not learn whether the email exists.
func (svc *Service) RequestPasswordReset(ctx context.Context, pr PasswordResetRequest) error {
	if err := pr.Validate(svc.validate); err != nil {
		return err
	}
	if err := svc.idp.RequestPasswordReset(ctx, pr.Email); err != nil && errors.Cause(err) != core.ErrNotFound {
		svc.logger.Error(fmt.Sprintf("requesting password reset: %v", err), err)
	}
	return nil
}

// ConfirmPasswordReset exchanges a recovery token for a short-lived access token and sets the new password.
func (svc *Service) ConfirmPasswordReset(ctx context.Context, rc PasswordResetConfirm) error {
	if err := rc.Validate(svc.validate); err != nil {
		return err
	}

	tokens, err := svc.idp.VerifyRecovery(ctx, rc.Email, rc.Token)
	if err != nil {
		if cause := errors.Cause(err); cause == ErrInvalidToken || cause == core.ErrUnauthorized {
			return core.NewValidationError(ErrInvalidToken, core.FieldError{Field: "token", Error: ErrInvalidToken.Error()})
		}
		return errors.Wrap(err, "verifying recovery token")
	}
	if err = svc.idp.UpdatePassword(ctx, tokens.AccessToken, rc.Password); err != nil {
		return errors.Wrap(err, "updating password")
	}
	if err = svc.idp.SignOut(ctx, tokens.AccessToken); err != nil {
		svc.logger.Warn(fmt.Sprintf("identity sign-out: %v", err), err)
	}
	return nil
}

// UpdatePassword sets a new password for the Session's user.
func (svc *Service) UpdatePassword(ctx context.Context, sess Session, pu PasswordUpdate) error {
	if err := pu.Validate(svc.validate, sess.User); err != nil {
		return err
	}
	if err := svc.idp.UpdatePassword(ctx, sess.AccessToken, pu.Password); err != nil {
		return errors.Wrap(err, "updating password")
	}
	return nil
}

// PurgeExpired deletes every expired Session and returns how many were deleted.
func (svc *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := svc.sessions.DeleteExpiredSessions(ctx, NowFunc().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	return n, nil
}
