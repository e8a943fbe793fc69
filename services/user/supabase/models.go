// Package supabase provides user, interest and profile table access.
package supabase

import "time"

// Table names
const (
	tableUsers         = "users"
	tableInterests     = "interests"
	tableUserInterests = "user_interests"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User mirrors a users row.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarPath string    `json:"avatar_path,omitempty"`
	Bio        string    `json:"bio,omitempty"`
	City       string    `json:"city,omitempty"`
	Role       string    `json:"role"`
	IsBanned   bool      `json:"is_banned"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsAdmin reports whether the user may moderate.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserUpdate carries the mutable profile columns; nil fields are left untouched.
type UserUpdate struct {
	Name       *string `json:"name,omitempty"`
	Bio        *string `json:"bio,omitempty"`
	City       *string `json:"city,omitempty"`
	AvatarPath *string `json:"avatar_path,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Bio == nil && u.City == nil && u.AvatarPath == nil
}

// Interest mirrors an interests row.
type Interest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserInterest links a user to an interest.
type UserInterest struct {
	UserID     string `json:"user_id"`
	InterestID string `json:"interest_id"`
}
