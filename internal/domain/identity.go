package domain

import "time"

// Identity mirrors the identity provider's view of a principal, including its role claim.
type Identity struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Caller is the authenticated principal invoking a privileged operation.
type Caller struct {
	UID   string
	Email string
	Role  Role
}

// Actor returns the identifier recorded as decidedBy.
func (c Caller) Actor() string {
	if c.Email != "" {
		return c.Email
	}
	return c.UID
}
