// Package models holds the server's persistent entities.
package models

import "time"

// Role is the authorization role of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAuditor Role = "auditor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleAuditor
}

// User is an account able to log in. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	UserName     string
	PasswordHash string
	Role         Role
	Name         string
	CreatedAt    time.Time
}

// PublicUser is the view of a User that may be sent to clients.
type PublicUser struct {
	ID       string `json:"_id,omitempty"`
	UserName string `json:"username"`
	Role     Role   `json:"role"`
	Name     string `json:"name"`
}

// Public strips credentials from u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, UserName: u.UserName, Role: u.Role, Name: u.Name}
}
