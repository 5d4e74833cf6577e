// Package session resolves bearer tokens into the signed-in identity and its cached display name.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pdflearn/internal/identity"
	"pdflearn/internal/model"
)

// ProfileReader fetches the profile record that carries the display name.
type ProfileReader interface {
	FindProfile(ctx context.Context, userID string) (*model.Profile, error)
}

type cachedName struct {
	name    *string
	expires time.Time
}

// Store turns tokens into sessions. It is safe for concurrent use.
type Store struct {
	provider identity.Provider
	profiles ProfileReader
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time

	mu    sync.RWMutex
	names map[string]cachedName

	unsubscribe func()
}

// NewStore builds a Store and subscribes it to the provider's session changes.
// nameTTL bounds how long a fetched display name is reused.
func NewStore(provider identity.Provider, profiles ProfileReader, nameTTL time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if nameTTL <= 0 {
		nameTTL = 5 * time.Minute
	}
	s := &Store{
		provider: provider,
		profiles: profiles,
		logger:   logger.With("component", "session"),
		ttl:      nameTTL,
		now:      time.Now,
		names:    make(map[string]cachedName),
	}
	s.unsubscribe = provider.Subscribe(s.onEvent)
	return s
}

// Close stops observing session changes.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Store) onEvent(e identity.Event) {
	switch e.Kind {
	case identity.EventSignedOut, identity.EventPasswordChanged, identity.EventSignedIn:
		s.Forget(e.UserID)
	}
}

// Forget drops the cached display name of a user.
func (s *Store) Forget(userID string) {
	s.mu.Lock()
	delete(s.names, userID)
	s.mu.Unlock()
}

// Remember caches a freshly written display name.
func (s *Store) Remember(userID string, name *string) {
	s.mu.Lock()
	s.names[userID] = cachedName{name: name, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// Resolve verifies token and returns the session it represents.
// An empty or rejected token yields an unauthenticated session and no error.
// The error is non-nil only when verification itself could not be completed.
func (s *Store) Resolve(ctx context.Context, token string) (model.Session, error) {
	if token == "" {
		return model.Session{}, nil
	}
	claims, err := s.provider.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return model.Session{}, nil
		}
		return model.Session{}, err
	}

	sess := model.Session{
		ID:            claims.ID,
		User:          &model.User{ID: claims.Subject, Email: claims.Email},
		Authenticated: true,
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	sess.UserName = s.displayName(ctx, claims.Subject)
	return sess, nil
}

// displayName never fails: a missing profile or a read error yields nil.
func (s *Store) displayName(ctx context.Context, userID string) *string {
	s.mu.RLock()
	c, ok := s.names[userID]
	s.mu.RUnlock()
	if ok && s.now().Before(c.expires) {
		return c.name
	}

	p, err := s.profiles.FindProfile(ctx, userID)
	if err != nil {
		s.logger.DebugContext(ctx, "profile_name_unavailable", "user_id", userID, "error", err.Error())
		return nil
	}
	s.Remember(userID, p.Name)
	return p.Name
}
