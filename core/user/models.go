package user

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trackmyacademy/dashboard/core"
)

// Roles
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleCoach      = "coach"
	RoleStudent    = "student"
)

var (
	AllRoles = []string{RoleSuperAdmin, RoleAdmin, RoleCoach, RoleStudent}

	// SignUpRoles are the roles a user may request when signing up.
	SignUpRoles = []string{RoleAdmin, RoleCoach, RoleStudent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Coach", Value: RoleCoach},
		{Name: "Academy Admin", Value: RoleAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the authenticated principal as returned by the backend's current-user endpoint.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	AcademyID string `json:"academy_id,omitempty"`
}

func (u User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }
func (u User) IsAdmin() bool      { return u.Role == RoleAdmin }
func (u User) IsCoach() bool      { return u.Role == RoleCoach }
func (u User) IsStudent() bool    { return u.Role == RoleStudent }

// HasAnyRole reports whether the user has one of `roles`. No roles means any role.
func (u User) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}

// Tokens are the credentials issued by the identity provider on sign-in.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"` // UTC
}

// Session is a server-side sign-in session. ID is the opaque token handed to clients.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	AccessToken    string    `json:"-"`
	RefreshToken   string    `json:"-"`
	TokenExpiresAt time.Time `json:"-"` // UTC, zero if unknown
	User           User      `json:"user"`
	ExpiresAt      time.Time `json:"expires_at"` // UTC
	CreatedAt      time.Time `json:"created_at"` // UTC
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// NeedsRefresh reports whether the access token is expired at `now` and can be refreshed.
func (s Session) NeedsRefresh(now time.Time) bool {
	return s.RefreshToken != "" && !s.TokenExpiresAt.IsZero() && !now.Before(s.TokenExpiresAt)
}

// Credentials are used to sign in.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Email = core.CleanString(c.Email, true /* lower */)
	return validate.Struct(c)
}

// SignUp contains information needed to register a new account through the backend, which assigns the role.
type SignUp struct {
	Name            string `json:"name" validate:"required,notblank"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"required,signuprole"`
	AcademyID       string `json:"academy_id,omitempty"`
}

func (su *SignUp) Validate(validate *validator.Validate) error {
	su.Name = core.CleanString(su.Name)
	su.Email = core.CleanString(su.Email, true /* lower */)
	su.Role = core.CleanString(su.Role, true /* lower */)
	su.AcademyID = core.CleanString(su.AcademyID)
	return validate.Struct(su)
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

// PasswordUpdate sets a new password for the signed-in user.
// Name and Email are not bound from requests; they feed the similarity check.
type PasswordUpdate struct {
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Name            string `json:"-"`
	Email           string `json:"-"`
}

func (pu *PasswordUpdate) Validate(validate *validator.Validate, usr User) error {
	pu.Name = usr.Name
	pu.Email = usr.Email
	return validate.Struct(pu)
}

// PasswordResetConfirm completes a password reset with the recovery token sent by email.
type PasswordResetConfirm struct {
	Email           string `json:"email" validate:"required,email"`
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rc *PasswordResetConfirm) Validate(validate *validator.Validate) error {
	rc.Email = core.CleanString(rc.Email, true /* lower */)
	rc.Token = core.CleanString(rc.Token)
	return validate.Struct(rc)
}
