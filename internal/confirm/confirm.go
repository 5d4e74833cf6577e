// Package confirm gates destructive operations behind single-use confirmation tickets.
// A command is first requested, which stores it with a description of its exact consequence,
// and only a redeemed command may be executed.
package confirm

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a ticket can wait for confirmation.
const DefaultTTL = 5 * time.Minute

var (
	ErrTicketNotFound = errors.New("confirmation ticket not found or expired")
	ErrKindMismatch   = errors.New("confirmation ticket is for a different action")
)

// Kind names a destructive command.
type Kind string

const (
	KindDeleteResources Kind = "delete-resources"
	KindDeleteDocument  Kind = "delete-document"
	KindReplaceUpload   Kind = "replace-upload"
	KindDiscardUpload   Kind = "discard-upload"
)

// Command is a pending destructive operation.
type Command struct {
	Kind        Kind              `json:"kind"`
	Description string            `json:"description"`
	DocumentID  string            `json:"document_id,omitempty"`
	ResourceIDs []string          `json:"resource_ids,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
}

// Ticket is handed to the caller, who must send Token back to execute the command.
type Ticket struct {
	Token       string    `json:"token"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store keeps tickets in Redis, scoped by owner.
type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

// NewStore returns a ticket store. A non-positive ttl selects DefaultTTL.
func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

func key(owner, token string) string {
	return "confirm:" + owner + ":" + token
}

// Request stores cmd and returns its ticket.
func (s *Store) Request(ctx context.Context, owner string, cmd Command) (*Ticket, error) {
	if owner == "" {
		return nil, errors.New("confirm: owner is required")
	}
	if cmd.Kind == "" || cmd.Description == "" {
		return nil, errors.New("confirm: kind and description are required")
	}
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	if err := s.rdb.Set(ctx, key(owner, token), b, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("store ticket: %w", err)
	}
	return &Ticket{
		Token:       token,
		Kind:        cmd.Kind,
		Description: cmd.Description,
		ExpiresAt:   s.now().Add(s.ttl).UTC(),
	}, nil
}

// Redeem consumes the ticket and returns its command. The ticket must be of one of kinds;
// a ticket of another kind is left untouched.
func (s *Store) Redeem(ctx context.Context, owner, token string, kinds ...Kind) (*Command, error) {
	if owner == "" || token == "" {
		return nil, ErrTicketNotFound
	}
	k := key(owner, token)
	b, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read ticket: %w", err)
	}
	var cmd Command
	if err := json.Unmarshal(b, &cmd); err != nil {
		return nil, fmt.Errorf("decode ticket: %w", err)
	}
	if !slices.Contains(kinds, cmd.Kind) {
		return nil, ErrKindMismatch
	}

	n, err := s.rdb.Del(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("consume ticket: %w", err)
	}
	if n == 0 {
		return nil, ErrTicketNotFound
	}
	return &cmd, nil
}

// Cancel discards a ticket without executing it.
func (s *Store) Cancel(ctx context.Context, owner, token string) error {
	n, err := s.rdb.Del(ctx, key(owner, token)).Result()
	if err != nil {
		return fmt.Errorf("cancel ticket: %w", err)
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate ticket: %w", err)
	}
	return hex.EncodeToString(b), nil
}
