// Package identity is the local identity provider: password sign-in, account creation,
// password reset by emailed code, re-authentication and token verification.
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pdflearn/internal/model"
)

// MinPasswordLength is enforced on sign-up, reset and password change.
const MinPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidResetCode   = errors.New("the password reset link is invalid or has expired")
	ErrUserNotFound       = errors.New("user not found")
)

// Claims are the JWT claims issued by the provider. The registered ID (jti) is the session id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Token is the result of a successful sign-in.
type Token struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	SessionID   string      `json:"session_id"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

// EventKind names a session change.
type EventKind string

const (
	EventSignedIn        EventKind = "signed_in"
	EventSignedOut       EventKind = "signed_out"
	EventPasswordChanged EventKind = "password_changed"
)

// Event is delivered to subscribers whenever a session changes.
type Event struct {
	Kind      EventKind
	UserID    string
	SessionID string
	At        time.Time
}

// Provider is the identity provider contract used by the rest of the application.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Token, error)
	SignUp(ctx context.Context, email, password string) (*model.User, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, code string) (string, error)
	ConfirmPasswordReset(ctx context.Context, code, newPassword string) error
	Reauthenticate(ctx context.Context, userID, password string) error
	UpdatePassword(ctx context.Context, userID, newPassword string) error
	SignOut(ctx context.Context, token string) error
	Verify(ctx context.Context, token string) (*Claims, error)
	Subscribe(fn func(Event)) (unsubscribe func())
}
