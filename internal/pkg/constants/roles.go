package constants

const (
	Admin    = "admin"
	Reviewer = "reviewer"
	Member   = "member"
)

// ValidRoles is the set of allowed DB enum values for user role.
var ValidRoles = []string{Member, Reviewer, Admin}

// IsValidRole returns true if role is one of the allowed enum values.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
