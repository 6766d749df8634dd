package domain

const (
	// RoleAdmin grants full access to the administration surface.
	RoleAdmin = "Admin"
	// RoleUser is the baseline role for regular members.
	RoleUser = "User"
)

// Role names a group of accounts.
type Role struct {
	ID      string
	Name    string
	Details *string
}

// HasRole reports whether name is present in roles.
func HasRole(roles []string, name string) bool {
	for _, role := range roles {
		if role == name {
			return true
		}
	}
	return false
}
