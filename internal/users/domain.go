package users

import (
	"time"

	"github.com/locallibrary/locallibrary/internal/authz"
)

// Principal is a stored account including credential material. It never
// leaves this package and internal/auth unredacted.
type Principal struct {
	ID        string
	Username  string
	FullName  string
	Email     string
	Digest    string
	Salt      string
	Role      authz.Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Redact strips digest and salt.
func (p *Principal) Redact() authz.Principal {
	return authz.Principal{
		ID:       p.ID,
		Username: p.Username,
		FullName: p.FullName,
		Email:    p.Email,
		Role:     p.Role,
	}
}

// RegisterInput is the registration form.
type RegisterInput struct {
	Username        string `validate:"required,min=3"`
	FullName        string `validate:"required,min=3"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=4,max=32"`
	PasswordConfirm string `validate:"required,min=4,max=32"`
	// Role is accepted from the form only to be ignored.
	Role string
}

// UpdateInput is the account update form. Empty password fields keep the
// current password.
type UpdateInput struct {
	Username        string `validate:"required,min=3"`
	FullName        string `validate:"required,min=3"`
	Email           string `validate:"required,email"`
	Role            string `validate:"required"`
	Password        string `validate:"omitempty,min=4,max=32"`
	PasswordConfirm string `validate:"omitempty,min=4,max=32"`
}

// ResetRequest is the first step of the password reset.
type ResetRequest struct {
	Username string `validate:"required,min=3"`
	Email    string `validate:"required,email"`
}

// ResetFinal is the second step of the password reset.
type ResetFinal struct {
	Token           string `validate:"required"`
	Password        string `validate:"required,min=4,max=32"`
	PasswordConfirm string `validate:"required,min=4,max=32"`
}

// FieldErrors maps a form field to a user facing message.
type FieldErrors map[string]string
