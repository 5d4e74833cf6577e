package repository

import (
	"context"

	"pdflearn/internal/model"
)

// UserRepository defines data access for identities and their profile records.
type UserRepository interface {
	// Create inserts a user and returns the stored row. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, u *model.User) (*model.User, error)

	// FindByEmail looks a user up by normalized email.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID returns a user by its ID.
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// UpsertProfile writes the profile record keyed by the user id.
	UpsertProfile(ctx context.Context, p *model.Profile) error

	// FindProfile returns the profile record of a user.
	FindProfile(ctx context.Context, userID string) (*model.Profile, error)
}
