package user

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/trackmyacademy/dashboard/core"
)

func TestCheckPassword(t *testing.T) {
	LoadCommonPasswords(core.NewTestConfig(), nopLogger{})

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "too short", pwd: "Sh0r!t", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Has Space1!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890123", want: pwdNotAllNumTag},
		{name: "no upper", pwd: "lower1!case", want: pwdComplexityTag},
		{name: "no special", pwd: "NoSpecial123", want: pwdComplexityTag},
		{name: "similar to email", pwd: "Jane@academy1", attrs: []string{"jane@academy.io"}, want: pwdAttrSimTag},
		{name: "similar to name (case-insensitive)", pwd: "JaneCoach#1", attrs: []string{"Jane Coach"}, want: pwdAttrSimTag},
		{name: "common", pwd: "P@ssw0rd", want: pwdNoCommonTag},
		{name: "valid", pwd: "Str0ng!Pass#2025", attrs: []string{"Jane Coach", "jane@academy.io"}},
		{name: "valid unicode", pwd: "Ünïcødé!Pass9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkPassword(tt.pwd, tt.attrs...))
		})
	}
}

func TestSignUp_Validate(t *testing.T) {
	validate := newValidate()

	tests := []struct {
		name    string
		su      SignUp
		wantErr map[string]string
	}{
		{
			name:    "valid",
			su:      SignUp{Name: "Kid", Email: "kid@academy.io", Password: testPassword, PasswordConfirm: testPassword, Role: "student"},
			wantErr: map[string]string{},
		},
		{
			name:    "mismatched confirmation",
			su:      SignUp{Name: "Kid", Email: "kid@academy.io", Password: testPassword, PasswordConfirm: "other", Role: "student"},
			wantErr: map[string]string{"password_confirm": "eqfield"},
		},
		{
			name: "everything wrong",
			su:   SignUp{Name: " ", Email: "kid", Password: "short", PasswordConfirm: "short", Role: "super_admin"},
			wantErr: map[string]string{
				"name":     "required",
				"email":    "email",
				"role":     signUpRoleTag,
				"password": pwdMinLenTag,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string]string)
			if err := tt.su.Validate(validate); err != nil {
				for _, e := range err.(validator.ValidationErrors) {
					got[e.Field()] = e.Tag()
				}
			}
			assert.Equal(t, tt.wantErr, got)
		})
	}
}

func TestUser_HasAnyRole(t *testing.T) {
	usr := User{Role: RoleCoach}
	assert.True(t, usr.HasAnyRole())
	assert.True(t, usr.HasAnyRole(RoleAdmin, RoleCoach))
	assert.False(t, usr.HasAnyRole(RoleSuperAdmin))
	assert.True(t, usr.IsCoach())
	assert.False(t, usr.IsStudent())
}
