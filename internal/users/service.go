package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/shared"
)

// Messages shown on the account forms.
const (
	MsgUsernameTaken     = "Username already taken. Choose another one."
	MsgPasswordsMismatch = "Passwords do not match."
	MsgResetNoMatch      = "The user does not exist or credentials did not match a user. Try again."
	MsgResetExpired      = "This password reset link is invalid or has expired. Start again."
	MsgRegistered        = "Successfully registered. You can log in now!"
	MsgPasswordChanged   = "You have successfully changed your password. You can log in now!"
)

var fieldMessages = map[string]string{
	"Username":        "Username must be at least 3 characters long.",
	"FullName":        "Full name must be at least 3 characters long.",
	"Email":           "Please enter a valid email address.",
	"Role":            "A role must be selected for the user.",
	"Password":        "Password must be between 4-32 characters long.",
	"PasswordConfirm": "Password confirmation must be between 4-32 characters long.",
	"Token":           MsgResetExpired,
}

// Notifier is told about account events; failures are logged, not fatal.
type Notifier interface {
	Registered(ctx context.Context, p authz.Principal) error
	PasswordChanged(ctx context.Context, p authz.Principal) error
}

// Service holds account business rules.
type Service struct {
	repo      Repository
	tokens    *ResetTokens
	notifier  Notifier
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance. notifier may be nil.
func NewService(repo Repository, tokens *ResetTokens, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		notifier:  notifier,
		logger:    logger,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// ResolveRole applies the role-escalation guard: a role change is honoured
// only when the actor is an admin, otherwise the stored role stays.
func ResolveRole(actor, stored, submitted authz.Role) authz.Role {
	if submitted == stored {
		return stored
	}
	if actor == authz.RoleAdmin && submitted.Valid() {
		return submitted
	}
	return stored
}

// Register creates a Viewer account. Any submitted role is ignored.
func (s *Service) Register(ctx context.Context, in RegisterInput) (authz.Principal, FieldErrors, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)

	errs := s.validate(in)
	if in.Password != in.PasswordConfirm {
		errs.add("PasswordConfirm", MsgPasswordsMismatch)
	}
	if len(errs) > 0 {
		return authz.Principal{}, errs, nil
	}

	if _, err := s.repo.FindByUsername(ctx, in.Username); err == nil {
		return authz.Principal{}, FieldErrors{"Username": MsgUsernameTaken}, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return authz.Principal{}, nil, err
	}

	p := &Principal{
		ID:       shared.NewID(),
		Username: in.Username,
		FullName: in.FullName,
		Email:    in.Email,
		Role:     authz.RoleViewer,
	}
	if err := p.SetPassword(in.Password); err != nil {
		return authz.Principal{}, nil, err
	}
	if err := s.repo.Insert(ctx, p); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return authz.Principal{}, FieldErrors{"Username": MsgUsernameTaken}, nil
		}
		return authz.Principal{}, nil, err
	}

	redacted := p.Redact()
	if s.notifier != nil {
		if err := s.notifier.Registered(ctx, redacted); err != nil {
			s.logger.Warn("notify registration", slog.String("principal", p.ID), slog.Any("error", err))
		}
	}
	return redacted, nil, nil
}

// Get returns the redacted principal.
func (s *Service) Get(ctx context.Context, id string) (authz.Principal, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return authz.Principal{}, err
	}
	return p.Redact(), nil
}

// List returns every principal ordered by full name.
func (s *Service) List(ctx context.Context) ([]authz.Principal, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]authz.Principal, 0, len(stored))
	for i := range stored {
		out = append(out, stored[i].Redact())
	}
	// Collators are not safe for concurrent use.
	c := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].FullName, out[j].FullName) < 0
	})
	return out, nil
}

// Update applies the account form submitted by actor to principal id.
func (s *Service) Update(ctx context.Context, actor authz.Principal, id string, in UpdateInput) (authz.Principal, FieldErrors, error) {
	stored, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return authz.Principal{}, nil, err
	}

	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalizeEmail(in.Email)

	errs := s.validate(in)
	submitted, perr := authz.ParseRole(in.Role)
	if perr != nil {
		errs.add("Role", fieldMessages["Role"])
	}
	changePassword := in.Password != "" || in.PasswordConfirm != ""
	if changePassword && in.Password != in.PasswordConfirm {
		errs.add("PasswordConfirm", MsgPasswordsMismatch)
	}

	updated := *stored
	updated.Username = in.Username
	updated.FullName = in.FullName
	updated.Email = in.Email
	if perr == nil {
		updated.Role = ResolveRole(actor.Role, stored.Role, submitted)
	}
	if len(errs) > 0 {
		return updated.Redact(), errs, nil
	}

	if changePassword {
		if err := updated.SetPassword(in.Password); err != nil {
			return authz.Principal{}, nil, err
		}
	}
	if err := s.repo.UpdateByID(ctx, &updated); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return updated.Redact(), FieldErrors{"Username": MsgUsernameTaken}, nil
		}
		return authz.Principal{}, nil, err
	}
	return updated.Redact(), nil, nil
}

// AdminCount returns how many admins exist when p is an admin. For other
// roles deletion is never guarded, which is reported as two.
func (s *Service) AdminCount(ctx context.Context, p authz.Principal) (int, error) {
	if p.Role != authz.RoleAdmin {
		return 2, nil
	}
	return s.repo.CountByRole(ctx, authz.RoleAdmin)
}

// Delete removes principal id. Deleting the last admin fails with
// ErrLastAdmin and reports the admin count.
func (s *Service) Delete(ctx context.Context, id string) (int, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if p.Role != authz.RoleAdmin {
		return 2, s.repo.DeleteByID(ctx, id)
	}
	return s.repo.DeleteAdmin(ctx, id)
}

// BeginReset matches username and email and returns a signed token for the
// second step together with the matched principal.
func (s *Service) BeginReset(ctx context.Context, in ResetRequest) (string, authz.Principal, FieldErrors, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	if errs := s.validate(in); len(errs) > 0 {
		return "", authz.Principal{}, errs, nil
	}
	p, err := s.repo.FindByUsernameAndEmail(ctx, in.Username, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", authz.Principal{}, FieldErrors{"general": MsgResetNoMatch}, nil
		}
		return "", authz.Principal{}, nil, err
	}
	return s.tokens.Issue(p.ID, p.Digest), p.Redact(), nil, nil
}

// FinishReset sets a new password for the principal named by the token.
// The stored role is left untouched.
func (s *Service) FinishReset(ctx context.Context, in ResetFinal) (FieldErrors, error) {
	errs := s.validate(in)
	if in.Password != in.PasswordConfirm {
		errs.add("PasswordConfirm", MsgPasswordsMismatch)
	}
	if len(errs) > 0 {
		return errs, nil
	}

	id, err := s.tokens.Parse(in.Token)
	if err != nil {
		return FieldErrors{"general": MsgResetExpired}, nil
	}
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return FieldErrors{"general": MsgResetExpired}, nil
		}
		return nil, err
	}
	if err := s.tokens.Verify(in.Token, p.Digest); err != nil {
		return FieldErrors{"general": MsgResetExpired}, nil
	}
	if err := p.SetPassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateByID(ctx, p); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		if err := s.notifier.PasswordChanged(ctx, p.Redact()); err != nil {
			s.logger.Warn("notify password change", slog.String("principal", p.ID), slog.Any("error", err))
		}
	}
	return nil, nil
}

func (s *Service) validate(form any) FieldErrors {
	errs := FieldErrors{}
	err := s.validator.Struct(form)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.add("general", fmt.Sprintf("invalid form: %v", err))
		return errs
	}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		errs.add(fe.Field(), msg)
	}
	return errs
}

func (e FieldErrors) add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
