package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"pdflearn/internal/audit"
	"pdflearn/internal/identity"
	"pdflearn/internal/model"
)

// User-safe account errors. Raw provider errors never reach the caller.
var (
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrEmailRequired            = errors.New("email is required")
	ErrInvalidEmail             = errors.New("please enter a valid email address")
	ErrEmailTaken               = errors.New("an account with this email already exists")
	ErrNameRequired             = errors.New("name is required")
	ErrPasswordTooShort         = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch         = errors.New("passwords do not match")
	ErrCurrentPasswordRequired  = errors.New("current password is required")
	ErrCurrentPasswordIncorrect = errors.New("current password is incorrect")
	ErrResetCodeInvalid         = errors.New("missing or invalid reset code")
	ErrAccountUnavailable       = errors.New("something went wrong, please try again")
)

// PasswordResetSent is shown after a reset email request, whether or not the address is known.
const PasswordResetSent = "Password reset email sent! Please check your inbox."

// Audit components, one per screen.
const (
	componentLogin   = "LoginPage"
	componentSignup  = "SignupPage"
	componentForgot  = "ForgotPasswordPage"
	componentReset   = "ResetPasswordPage"
	componentAccount = "AccountPage"
	componentSidebar = "Sidebar"
)

const auditCategory = "AUTH ACTION"

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ResetPasswordRequest struct {
	Code            string `json:"code"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// AccountService runs the authentication screens. Each submission makes at most one
// identity call after local validation, and every outcome is audited.
type AccountService interface {
	SignIn(ctx context.Context, req SignInRequest) (*identity.Token, error)
	SignUp(ctx context.Context, req SignUpRequest) (*model.User, error)
	ForgotPassword(ctx context.Context, email string) error
	VerifyReset(ctx context.Context, code string) (string, error)
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error
	SignOut(ctx context.Context, userID, token string) error
}

// ProfileWriter stores the profile record written on sign-up.
type ProfileWriter interface {
	UpsertProfile(ctx context.Context, p *model.Profile) error
}

type accountService struct {
	provider identity.Provider
	profiles ProfileWriter
	audit    audit.Logger
	logger   *slog.Logger
}

// NewAccountService constructs an AccountService. A nil auditor discards events.
func NewAccountService(provider identity.Provider, profiles ProfileWriter, auditor audit.Logger, logger *slog.Logger) AccountService {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &accountService{
		provider: provider,
		profiles: profiles,
		audit:    auditor,
		logger:   logger.With("component", "account"),
	}
}

func (s *accountService) record(ctx context.Context, component, step string, level audit.Level, details map[string]any) {
	s.audit.Log(ctx, audit.Event{
		Action:    audit.Action(auditCategory, step),
		Component: component,
		Level:     level,
		Details:   details,
	})
}

func (s *accountService) fail(ctx context.Context, component, step string, err error, details map[string]any) {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	out["error"] = err.Error()
	s.record(ctx, component, step, audit.LevelError, out)
}

func (s *accountService) SignIn(ctx context.Context, req SignInRequest) (*identity.Token, error) {
	email := strings.TrimSpace(req.Email)
	s.record(ctx, componentLogin, "LOGIN ATTEMPT", audit.LevelInfo, map[string]any{"email": email})

	if email == "" || req.Password == "" {
		s.fail(ctx, componentLogin, "LOGIN FAILURE", ErrInvalidCredentials, map[string]any{"email": email})
		return nil, ErrInvalidCredentials
	}
	tok, err := s.provider.SignIn(ctx, email, req.Password)
	if err != nil {
		s.fail(ctx, componentLogin, "LOGIN FAILURE", err, map[string]any{"email": email})
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		s.logger.ErrorContext(ctx, "sign_in_failed", "error", err.Error())
		return nil, ErrAccountUnavailable
	}
	s.record(ctx, componentLogin, "LOGIN SUCCESS", audit.LevelInfo, map[string]any{"email": email, "session_id": tok.SessionID})
	return tok, nil
}

func (s *accountService) SignUp(ctx context.Context, req SignUpRequest) (*model.User, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	details := map[string]any{"email": email, "name": name}
	s.record(ctx, componentSignup, "SIGNUP ATTEMPT", audit.LevelInfo, details)

	var invalid error
	switch {
	case req.Password != req.ConfirmPassword:
		invalid = ErrPasswordMismatch
	case name == "":
		invalid = ErrNameRequired
	case email == "":
		invalid = ErrEmailRequired
	case len(req.Password) < identity.MinPasswordLength:
		invalid = ErrPasswordTooShort
	}
	if invalid != nil {
		s.fail(ctx, componentSignup, "SIGNUP VALIDATION FAILURE", invalid, details)
		return nil, invalid
	}

	u, err := s.provider.SignUp(ctx, email, req.Password)
	if err != nil {
		s.fail(ctx, componentSignup, "SIGNUP FAILURE", err, details)
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			return nil, ErrEmailTaken
		case errors.Is(err, identity.ErrInvalidEmail):
			return nil, ErrInvalidEmail
		case errors.Is(err, identity.ErrWeakPassword):
			return nil, ErrPasswordTooShort
		}
		s.logger.ErrorContext(ctx, "sign_up_failed", "error", err.Error())
		return nil, ErrAccountUnavailable
	}

	// The account exists at this point; a missing profile only costs the display name.
	if err := s.profiles.UpsertProfile(ctx, &model.Profile{UserID: u.ID, Email: u.Email, Name: &name}); err != nil {
		s.logger.WarnContext(ctx, "profile_write_failed", "user_id", u.ID, "error", err.Error())
		s.record(ctx, componentSignup, "PROFILE WRITE FAILURE", audit.LevelWarn, map[string]any{"user_id": u.ID, "error": err.Error()})
	}
	s.record(ctx, componentSignup, "SIGNUP SUCCESS", audit.LevelInfo, map[string]any{"user_id": u.ID})
	return u, nil
}

func (s *accountService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	s.record(ctx, componentForgot, "PASSWORD RESET REQUEST", audit.LevelInfo, map[string]any{"email": email})
	if email == "" {
		s.fail(ctx, componentForgot, "PASSWORD RESET FAILURE", ErrEmailRequired, nil)
		return ErrEmailRequired
	}
	if err := s.provider.SendPasswordResetEmail(ctx, email); err != nil {
		s.fail(ctx, componentForgot, "PASSWORD RESET FAILURE", err, map[string]any{"email": email})
		if errors.Is(err, identity.ErrInvalidEmail) {
			return ErrInvalidEmail
		}
		s.logger.ErrorContext(ctx, "password_reset_request_failed", "error", err.Error())
		return ErrAccountUnavailable
	}
	s.record(ctx, componentForgot, "PASSWORD RESET EMAIL SENT", audit.LevelInfo, map[string]any{"email": email})
	return nil
}

func (s *accountService) VerifyReset(ctx context.Context, code string) (string, error) {
	s.record(ctx, componentReset, "RESET CODE CHECK", audit.LevelInfo, nil)
	code = strings.TrimSpace(code)
	if code == "" {
		s.fail(ctx, componentReset, "RESET CODE INVALID", ErrResetCodeInvalid, nil)
		return "", ErrResetCodeInvalid
	}
	email, err := s.provider.VerifyResetCode(ctx, code)
	if err != nil {
		s.fail(ctx, componentReset, "RESET CODE INVALID", err, nil)
		if errors.Is(err, identity.ErrInvalidResetCode) {
			return "", ErrResetCodeInvalid
		}
		s.logger.ErrorContext(ctx, "reset_code_check_failed", "error", err.Error())
		return "", ErrAccountUnavailable
	}
	s.record(ctx, componentReset, "RESET CODE VERIFIED", audit.LevelInfo, map[string]any{"email": email})
	return email, nil
}

func (s *accountService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	s.record(ctx, componentReset, "PASSWORD RESET ATTEMPT", audit.LevelInfo, nil)

	var invalid error
	switch {
	case strings.TrimSpace(req.Code) == "":
		invalid = ErrResetCodeInvalid
	case len(req.Password) < identity.MinPasswordLength:
		invalid = ErrPasswordTooShort
	case req.Password != req.ConfirmPassword:
		invalid = ErrPasswordMismatch
	}
	if invalid != nil {
		s.fail(ctx, componentReset, "PASSWORD RESET VALIDATION FAILURE", invalid, nil)
		return invalid
	}

	if err := s.provider.ConfirmPasswordReset(ctx, strings.TrimSpace(req.Code), req.Password); err != nil {
		s.fail(ctx, componentReset, "PASSWORD RESET FAILURE", err, nil)
		switch {
		case errors.Is(err, identity.ErrInvalidResetCode):
			return ErrResetCodeInvalid
		case errors.Is(err, identity.ErrWeakPassword):
			return ErrPasswordTooShort
		}
		s.logger.ErrorContext(ctx, "password_reset_failed", "error", err.Error())
		return ErrAccountUnavailable
	}
	s.record(ctx, componentReset, "PASSWORD RESET SUCCESS", audit.LevelInfo, nil)
	return nil
}

func (s *accountService) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	details := map[string]any{"user_id": userID}
	s.record(ctx, componentAccount, "PASSWORD CHANGE ATTEMPT", audit.LevelInfo, details)

	var invalid error
	switch {
	case req.CurrentPassword == "":
		invalid = ErrCurrentPasswordRequired
	case len(req.NewPassword) < identity.MinPasswordLength:
		invalid = ErrPasswordTooShort
	case req.NewPassword != req.ConfirmPassword:
		invalid = ErrPasswordMismatch
	}
	if invalid != nil {
		s.fail(ctx, componentAccount, "PASSWORD CHANGE VALIDATION FAILURE", invalid, details)
		return invalid
	}

	if err := s.provider.Reauthenticate(ctx, userID, req.CurrentPassword); err != nil {
		s.fail(ctx, componentAccount, "REAUTHENTICATION FAILURE", err, map[string]any{"user_id": userID})
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return ErrCurrentPasswordIncorrect
		}
		s.logger.ErrorContext(ctx, "reauthentication_failed", "error", err.Error())
		return ErrAccountUnavailable
	}
	if err := s.provider.UpdatePassword(ctx, userID, req.NewPassword); err != nil {
		s.fail(ctx, componentAccount, "PASSWORD CHANGE FAILURE", err, map[string]any{"user_id": userID})
		if errors.Is(err, identity.ErrWeakPassword) {
			return ErrPasswordTooShort
		}
		s.logger.ErrorContext(ctx, "password_change_failed", "error", err.Error())
		return ErrAccountUnavailable
	}
	s.record(ctx, componentAccount, "PASSWORD CHANGE SUCCESS", audit.LevelInfo, map[string]any{"user_id": userID})
	return nil
}

func (s *accountService) SignOut(ctx context.Context, userID, token string) error {
	s.record(ctx, componentSidebar, "SIGNOUT ATTEMPT", audit.LevelInfo, map[string]any{"user_id": userID})
	if err := s.provider.SignOut(ctx, token); err != nil {
		s.fail(ctx, componentSidebar, "SIGNOUT FAILURE", err, map[string]any{"user_id": userID})
		if errors.Is(err, identity.ErrInvalidToken) {
			return ErrUnauthenticated
		}
		s.logger.ErrorContext(ctx, "sign_out_failed", "error", err.Error())
		return ErrAccountUnavailable
	}
	s.record(ctx, componentSidebar, "SIGNOUT SUCCESS", audit.LevelInfo, map[string]any{"user_id": userID})
	return nil
}
