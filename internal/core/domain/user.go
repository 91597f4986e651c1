package domain

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User models a registered player. Score is nil until the first score update.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Score        *int64    `json:"score"`
	CreatedAt    time.Time `json:"created_at"`
}

// CurrentScore returns the score with an unset score counted as zero.
func (u *User) CurrentScore() int64 {
	if u == nil || u.Score == nil {
		return 0
	}
	return *u.Score
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
