package inmemidentity

import (
	"context"
	"crypto/rand"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
	identitysvc "github.com/trackmyacademy/dashboard/services/identity"
)

const (
	issuer                = "trackmyacademy-inmem"
	passwordResetTemplate = "password_reset"
)

var AccessTokenTTL = time.Hour

type account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash []byte
	LastSignIn   time.Time
}

// Provider is an in-process identity provider for local development and tests.
// Accounts live in memory; access tokens are HS256 JWTs.
type Provider struct {
	secret  []byte
	mailSvc core.EmailService
	logger  core.Logger

	mu       sync.RWMutex
	accounts map[string]*account // by lower-cased email
	refresh  map[string]string   // refresh token -> account id
	revoked  map[string]struct{} // signed out access tokens
}

var _ user.Identity = (*Provider)(nil)

// NewProvider returns an empty Provider. Without a configured JWT secret, a random one is generated.
func NewProvider(conf *core.Config, mailSvc core.EmailService, logger core.Logger) *Provider {
	secret := []byte(conf.Identity.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Fatal("generating identity secret", err)
		}
	}
	return &Provider{
		secret:   secret,
		mailSvc:  mailSvc,
		logger:   logger,
		accounts: make(map[string]*account),
		refresh:  make(map[string]string),
		revoked:  make(map[string]struct{}),
	}
}

// AddAccount registers an account. `id` should match the backend user id.
func (p *Provider) AddAccount(id, email, name, password string) error {
	email = core.CleanString(email, true /* lower */)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.accounts[email]; exists {
		return core.NewRejectionError(422, "User already registered")
	}
	p.accounts[email] = &account{ID: id, Email: email, Name: name, PasswordHash: hash}
	return nil
}

// issue must be called with the lock held.
func (p *Provider) issue(acc *account) (user.Tokens, error) {
	now := identitysvc.NowFunc()
	access, err := identitysvc.SignToken(identitysvc.NewClaims(issuer, acc.ID, acc.Email, now, AccessTokenTTL), p.secret)
	if err != nil {
		return user.Tokens{}, err
	}
	refresh := uuid.NewString()
	p.refresh[refresh] = acc.ID
	return user.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Unix(now.Add(AccessTokenTTL).Unix(), 0).UTC(),
	}, nil
}

// byID must be called with the lock held.
func (p *Provider) byID(id string) (*account, bool) {
	for _, acc := range p.accounts {
		if acc.ID == id {
			return acc, true
		}
	}
	return nil, false
}

// authenticate must be called with the lock held.
func (p *Provider) authenticate(accessToken string) (*account, error) {
	if _, revoked := p.revoked[accessToken]; revoked {
		return nil, core.ErrUnauthorized
	}
	claims, err := identitysvc.ParseToken(accessToken, p.secret)
	if err != nil {
		return nil, err
	}
	acc, ok := p.byID(claims.Subject)
	if !ok {
		return nil, core.ErrUnauthorized
	}
	return acc, nil
}

func (p *Provider) SignIn(_ context.Context, email, password string) (user.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[core.CleanString(email, true /* lower */)]
	if !ok || bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)) != nil {
		return user.Tokens{}, user.ErrInvalidCredentials
	}
	acc.LastSignIn = identitysvc.NowFunc()
	return p.issue(acc)
}

// Refresh rotates the refresh token: each one can be used once.
func (p *Provider) Refresh(_ context.Context, refreshToken string) (user.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.refresh[refreshToken]
	if !ok {
		return user.Tokens{}, core.ErrUnauthorized
	}
	delete(p.refresh, refreshToken)
	acc, ok := p.byID(id)
	if !ok {
		return user.Tokens{}, core.ErrUnauthorized
	}
	return p.issue(acc)
}

// SignOut revokes the access token and every refresh token of its account.
func (p *Provider) SignOut(_ context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, err := p.authenticate(accessToken)
	if err != nil {
		return err
	}
	p.revoked[accessToken] = struct{}{}
	for token, id := range p.refresh {
		if id == acc.ID {
			delete(p.refresh, token)
		}
	}
	return nil
}

func (p *Provider) GetUser(_ context.Context, accessToken string) (user.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	acc, err := p.authenticate(accessToken)
	if err != nil {
		return user.Account{}, err
	}
	return user.Account{ID: acc.ID, Email: acc.Email}, nil
}

// RequestPasswordReset emails a recovery token. Unknown emails return core.ErrNotFound.
func (p *Provider) RequestPasswordReset(_ context.Context, email string) error {
	p.mu.RLock()
	acc, ok := p.accounts[core.CleanString(email, true /* lower */)]
	var snapshot account
	if ok {
		snapshot = *acc
	}
	p.mu.RUnlock()
	if !ok {
		return core.ErrNotFound
	}

	token := makeRecoveryToken(snapshot, p.secret, identitysvc.NowFunc())
	p.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: snapshot.Name, Address: snapshot.Email}},
		Subject:      "Reset your password",
		TemplateName: passwordResetTemplate,
		TemplateData: map[string]interface{}{
			"Name":  snapshot.Name,
			"Email": snapshot.Email,
			"Token": token,
		},
	})
	return nil
}

// VerifyRecovery exchanges a recovery token for tokens. Bad or expired tokens return user.ErrInvalidToken.
func (p *Provider) VerifyRecovery(_ context.Context, email, token string) (user.Tokens, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acc, ok := p.accounts[core.CleanString(email, true /* lower */)]
	if !ok {
		return user.Tokens{}, user.ErrInvalidToken
	}
	if err := verifyRecoveryToken(*acc, p.secret, strings.TrimSpace(token), identitysvc.NowFunc()); err != nil {
		return user.Tokens{}, user.ErrInvalidToken
	}
	return p.issue(acc)
}

func (p *Provider) UpdatePassword(_ context.Context, accessToken, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acc, err := p.authenticate(accessToken)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	return nil
}
