// Package models - Users and roles.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the privilege level of a user account.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// ValidRoles lists all roles in descending privilege.
var ValidRoles = []Role{RoleAdmin, RoleInstructor, RoleStudent}

// ParseRole normalizes and validates a role name. An empty string is a student.
func ParseRole(s string) (Role, error) {
	if strings.TrimSpace(s) == "" {
		return RoleStudent, nil
	}
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidRoles {
		if r == v {
			return r, nil
		}
	}
	return "", fmt.Errorf("invalid role %q: must be one of admin, instructor, student", s)
}

// Privileged reports whether only an admin may create accounts with this role.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleInstructor
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
