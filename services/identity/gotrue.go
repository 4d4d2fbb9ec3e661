package identitysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

const serviceName = "identity"

var NowFunc = time.Now // mockable

// GoTrue is a client of a GoTrue-compatible identity provider (e.g. Supabase Auth).
type GoTrue struct {
	baseURL string
	apiKey  string
	secret  []byte
	rest    *rest.Client
}

var _ user.Identity = (*GoTrue)(nil)

func NewGoTrue(conf *core.Config) *GoTrue {
	return &GoTrue{
		baseURL: strings.TrimRight(conf.Identity.BaseURL, "/") + "/auth/v1",
		apiKey:  conf.Identity.APIKey,
		secret:  []byte(conf.Identity.JWTSecret),
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: conf.Identity.Timeout}},
	}
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	User         user.Account `json:"user"`
}

func (tr tokenResponse) tokens() user.Tokens {
	tokens := user.Tokens{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}
	switch {
	case tr.ExpiresAt > 0:
		tokens.ExpiresAt = time.Unix(tr.ExpiresAt, 0).UTC()
	case tr.ExpiresIn > 0:
		tokens.ExpiresAt = NowFunc().Add(time.Duration(tr.ExpiresIn) * time.Second).UTC()
	default:
		tokens.ExpiresAt = ExpiresAt(tr.AccessToken)
	}
	return tokens
}

// apiError is a GoTrue error payload; field names vary across versions.
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (e apiError) String() string {
	for _, s := range []string{e.ErrorDescription, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (g *GoTrue) do(ctx context.Context, method rest.Method, path, token string, query map[string]string, in, out interface{}) error {
	req := rest.Request{
		Method:      method,
		BaseURL:     g.baseURL + path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: query,
	}
	if g.apiKey != "" {
		req.Headers["apikey"] = g.apiKey
	}
	if token != "" {
		req.Headers["Authorization"] = "Bearer " + token
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		req.Body = body
		req.Headers["Content-Type"] = "application/json"
	}

	res, err := g.rest.SendWithContext(ctx, req)
	if err != nil {
		return core.NewTransportError(serviceName, 0, err)
	}

	switch code := res.StatusCode; {
	case code >= http.StatusInternalServerError:
		return core.NewTransportError(serviceName, code, nil)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return core.ErrUnauthorized
	case code >= http.StatusBadRequest:
		var body apiError
		msg := strings.TrimSpace(res.Body)
		if err = json.Unmarshal([]byte(res.Body), &body); err == nil && body.String() != "" {
			msg = body.String()
		}
		return core.NewRejectionError(code, msg)
	}

	if out == nil || strings.TrimSpace(res.Body) == "" {
		return nil
	}
	if err = json.Unmarshal([]byte(res.Body), out); err != nil {
		return core.NewTransportError(serviceName, res.StatusCode, errors.Wrap(err, "decoding response"))
	}
	return nil
}

// isRejection reports whether err is a 4xx answer other than 401/403.
func isRejection(err error) bool {
	_, ok := errors.Cause(err).(*core.RejectionError)
	return ok
}

// SignIn exchanges an email and password for tokens. Wrong credentials return user.ErrInvalidCredentials.
func (g *GoTrue) SignIn(ctx context.Context, email, password string) (user.Tokens, error) {
	var tr tokenResponse
	err := g.do(ctx, rest.Post, "/token", "", map[string]string{"grant_type": "password"},
		map[string]string{"email": email, "password": password}, &tr)
	if err != nil {
		if isRejection(err) || core.IsUnauthorized(err) {
			return user.Tokens{}, user.ErrInvalidCredentials
		}
		return user.Tokens{}, errors.Wrap(err, "signing in")
	}
	return tr.tokens(), nil
}

// Refresh exchanges a refresh token for new tokens. A revoked or unknown refresh token returns core.ErrUnauthorized.
func (g *GoTrue) Refresh(ctx context.Context, refreshToken string) (user.Tokens, error) {
	if refreshToken == "" {
		return user.Tokens{}, core.ErrUnauthorized
	}
	var tr tokenResponse
	err := g.do(ctx, rest.Post, "/token", "", map[string]string{"grant_type": "refresh_token"},
		map[string]string{"refresh_token": refreshToken}, &tr)
	if err != nil {
		if isRejection(err) {
			return user.Tokens{}, core.ErrUnauthorized
		}
		return user.Tokens{}, errors.Wrap(err, "refreshing token")
	}
	return tr.tokens(), nil
}

func (g *GoTrue) SignOut(ctx context.Context, accessToken string) error {
	return errors.Wrap(g.do(ctx, rest.Post, "/logout", accessToken, nil, nil, nil), "signing out")
}

// GetUser returns the account owning `accessToken`.
// When a JWT secret is configured, forged or expired tokens are rejected without a network call.
func (g *GoTrue) GetUser(ctx context.Context, accessToken string) (user.Account, error) {
	if accessToken == "" {
		return user.Account{}, core.ErrUnauthorized
	}
	if len(g.secret) > 0 {
		if _, err := ParseToken(accessToken, g.secret); err != nil {
			return user.Account{}, err
		}
	}

	var acc user.Account
	err := g.do(ctx, rest.Get, "/user", accessToken, nil, nil, &acc)
	return acc, errors.Wrap(err, "getting user")
}

func (g *GoTrue) RequestPasswordReset(ctx context.Context, email string) error {
	err := g.do(ctx, rest.Post, "/recover", "", nil, map[string]string{"email": email}, nil)
	return errors.Wrap(err, "requesting password reset")
}

// VerifyRecovery exchanges a recovery token for tokens. Bad tokens return user.ErrInvalidToken.
func (g *GoTrue) VerifyRecovery(ctx context.Context, email, token string) (user.Tokens, error) {
	var tr tokenResponse
	err := g.do(ctx, rest.Post, "/verify", "", nil,
		map[string]string{"type": "recovery", "email": email, "token": token}, &tr)
	if err != nil {
		if isRejection(err) || core.IsUnauthorized(err) {
			return user.Tokens{}, user.ErrInvalidToken
		}
		return user.Tokens{}, errors.Wrap(err, "verifying recovery token")
	}
	return tr.tokens(), nil
}

func (g *GoTrue) UpdatePassword(ctx context.Context, accessToken, password string) error {
	if accessToken == "" {
		return core.ErrUnauthorized
	}
	err := g.do(ctx, rest.Put, "/user", accessToken, nil, map[string]string{"password": password}, nil)
	return errors.Wrap(err, "updating password")
}
