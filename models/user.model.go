package models

import "time"

// User represents an admin account for the dashboard.
type User struct {
	ID            string     `bson:"_id,omitempty" json:"id,omitempty"`
	Name          string     `bson:"name" json:"name"`
	Email         string     `bson:"email" json:"email"`
	Password      string     `bson:"password,omitempty" json:"-"`
	Role          string     `bson:"role" json:"role"` // "admin" or "staff"
	IsActive      bool       `bson:"is_active" json:"isActive"`
	LoginAttempts int        `bson:"login_attempts" json:"-"`
	LockUntil     *time.Time `bson:"lock_until,omitempty" json:"-"`
	LastLogin     *time.Time `bson:"last_login,omitempty" json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updated_at" json:"updatedAt"`
}

// Locked reports whether the account is currently locked out after too many
// failed login attempts.
func (u *User) Locked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}
