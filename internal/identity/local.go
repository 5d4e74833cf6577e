package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"pdflearn/internal/config"
	"pdflearn/internal/model"
	"pdflearn/internal/repository"
)

const (
	resetKeyPrefix   = "identity:reset:"
	revokedKeyPrefix = "identity:revoked:"
)

// Options configures the local provider.
type Options struct {
	Auth config.AuthConfig
	// AppBaseURL is the public origin used to build reset links.
	AppBaseURL string
	Mailer     Mailer
	Logger     *slog.Logger
	Now        func() time.Time
}

type local struct {
	users  repository.UserRepository
	rdb    redis.Cmdable
	cfg    config.AuthConfig
	base   string
	mailer Mailer
	logger *slog.Logger
	now    func() time.Time
	events broadcaster
}

// NewLocal builds a Provider over the user repository and Redis.
func NewLocal(users repository.UserRepository, rdb redis.Cmdable, opts Options) (Provider, error) {
	if strings.TrimSpace(opts.Auth.JWTSecret) == "" {
		return nil, errors.New("identity: jwt secret is required")
	}
	if opts.Auth.TokenTTL <= 0 {
		opts.Auth.TokenTTL = 24 * time.Hour
	}
	if opts.Auth.ResetCodeTTL <= 0 {
		opts.Auth.ResetCodeTTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Mailer == nil {
		opts.Mailer = LogMailer{Logger: opts.Logger}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &local{
		users:  users,
		rdb:    rdb,
		cfg:    opts.Auth,
		base:   strings.TrimRight(opts.AppBaseURL, "/"),
		mailer: opts.Mailer,
		logger: opts.Logger.With("component", "identity"),
		now:    opts.Now,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (p *local) hash(password string) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// SignIn verifies credentials and issues a token. Unknown email and wrong password are indistinguishable.
func (p *local) SignIn(ctx context.Context, email, password string) (*Token, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	tok, err := p.issue(u)
	if err != nil {
		return nil, err
	}
	p.events.publish(Event{Kind: EventSignedIn, UserID: u.ID, SessionID: tok.SessionID, At: p.now()})
	return tok, nil
}

func (p *local) issue(u *model.User) (*Token, error) {
	now := p.now().UTC()
	exp := now.Add(p.cfg.TokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    p.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Email: u.Email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{
		AccessToken: signed,
		TokenType:   "Bearer",
		SessionID:   claims.ID,
		ExpiresAt:   exp,
		User:        u,
	}, nil
}

// SignUp creates an account. It does not sign the new user in.
func (p *local) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := p.hash(password)
	if err != nil {
		return nil, err
	}
	u, err := p.users.Create(ctx, &model.User{Email: email, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// SendPasswordResetEmail stores a single-use code and mails the reset link.
// Unknown addresses succeed silently so that account existence is not revealed.
func (p *local) SendPasswordResetEmail(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	u, err := p.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			p.logger.InfoContext(ctx, "password_reset_unknown_email")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}

	code, err := randomCode()
	if err != nil {
		return err
	}
	if err := p.rdb.Set(ctx, resetKeyPrefix+code, u.ID, p.cfg.ResetCodeTTL).Err(); err != nil {
		return fmt.Errorf("store reset code: %w", err)
	}
	link := p.base + "/reset-password?code=" + url.QueryEscape(code)
	if err := p.mailer.SendPasswordReset(ctx, u.Email, link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// VerifyResetCode returns the email the code was issued for without consuming it.
func (p *local) VerifyResetCode(ctx context.Context, code string) (string, error) {
	u, err := p.lookupReset(ctx, code)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

func (p *local) lookupReset(ctx context.Context, code string) (*model.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidResetCode
	}
	userID, err := p.rdb.Get(ctx, resetKeyPrefix+code).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidResetCode
	}
	if err != nil {
		return nil, fmt.Errorf("read reset code: %w", err)
	}
	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidResetCode
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// ConfirmPasswordReset consumes the code and sets the new password.
func (p *local) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	u, err := p.lookupReset(ctx, code)
	if err != nil {
		return err
	}
	n, err := p.rdb.Del(ctx, resetKeyPrefix+strings.TrimSpace(code)).Result()
	if err != nil {
		return fmt.Errorf("consume reset code: %w", err)
	}
	if n == 0 {
		return ErrInvalidResetCode
	}
	if err := p.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	p.events.publish(Event{Kind: EventPasswordChanged, UserID: u.ID, At: p.now()})
	return nil
}

// Reauthenticate checks the current password of a signed-in user.
func (p *local) Reauthenticate(ctx context.Context, userID, password string) error {
	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("find user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// UpdatePassword replaces the password of a signed-in user.
func (p *local) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	if err := p.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	p.events.publish(Event{Kind: EventPasswordChanged, UserID: userID, At: p.now()})
	return nil
}

// SignOut revokes the token's session until the token would have expired.
func (p *local) SignOut(ctx context.Context, token string) error {
	claims, err := p.parse(token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(p.now())
	if ttl > 0 {
		if err := p.rdb.Set(ctx, revokedKeyPrefix+claims.ID, claims.Subject, ttl).Err(); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	p.events.publish(Event{Kind: EventSignedOut, UserID: claims.Subject, SessionID: claims.ID, At: p.now()})
	return nil
}

// Verify validates signature, issuer, expiry and revocation.
func (p *local) Verify(ctx context.Context, token string) (*Claims, error) {
	claims, err := p.parse(token)
	if err != nil {
		return nil, err
	}
	n, err := p.rdb.Exists(ctx, revokedKeyPrefix+claims.ID).Result()
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if n > 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (p *local) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(p.cfg.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Subscribe registers fn for session-change events.
func (p *local) Subscribe(fn func(Event)) func() {
	return p.events.subscribe(fn)
}

func randomCode() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
