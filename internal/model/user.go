package model

import "time"

// User is an identity known to the local identity provider.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Profile is the user-profile record written on sign-up.
type Profile struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the resolved view of a signed-in identity.
type Session struct {
	ID            string    `json:"session_id,omitempty"`
	User          *User     `json:"user"`
	UserName      *string   `json:"user_name"`
	Authenticated bool      `json:"authenticated"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
}

// UserID returns the signed-in user id or an empty string.
func (s Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}
