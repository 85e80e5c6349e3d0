package domain

// Role enumerates the claim values carried by principals.
type Role string

const (
	RoleUser    Role = "user"
	RoleOfficer Role = "officer"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOfficer, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether r may act on other principals' records.
func (r Role) IsStaff() bool {
	return r == RoleOfficer || r == RoleAdmin
}
