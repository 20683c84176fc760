package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/users"
)

// Login failure reasons. Both wrap shared.ErrInvalidCredentials.
var (
	ErrUnknownUser = fmt.Errorf("auth: unknown user: %w", shared.ErrInvalidCredentials)
	ErrBadPassword = fmt.Errorf("auth: bad password: %w", shared.ErrInvalidCredentials)
)

// Login failure messages queued for the login page.
const (
	MsgUnknownUser = "Incorrect username."
	MsgBadPassword = "Incorrect password."
)

// FailureMessage maps a verification error to its one-shot message.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnknownUser):
		return MsgUnknownUser
	case errors.Is(err, ErrBadPassword):
		return MsgBadPassword
	default:
		return shared.UserSafeMessage(err)
	}
}

// PrincipalFinder is the part of the principal store auth reads.
type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (*users.Principal, error)
	FindByUsername(ctx context.Context, username string) (*users.Principal, error)
}

// Service verifies credentials and resolves session identities.
type Service struct {
	repo PrincipalFinder
}

// NewService constructs a new Service.
func NewService(repo PrincipalFinder) *Service {
	return &Service{repo: repo}
}

// Verify checks username and password. Only the redacted principal is
// returned, even on success.
func (s *Service) Verify(ctx context.Context, username, password string) (authz.Principal, error) {
	p, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return authz.Principal{}, ErrUnknownUser
		}
		return authz.Principal{}, err
	}
	if !users.CheckPassword(p, password) {
		return authz.Principal{}, ErrBadPassword
	}
	return p.Redact(), nil
}

// Resolve returns the principal bound to sess, or nil for anonymous
// sessions. A principal id that no longer exists resolves to anonymous.
func (s *Service) Resolve(ctx context.Context, sess *shared.Session) (*authz.Principal, error) {
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	p, err := s.repo.FindByID(ctx, sess.User())
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	redacted := p.Redact()
	return &redacted, nil
}

var _ authz.IdentityResolver = (*Service)(nil)
