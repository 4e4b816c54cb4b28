package chat

import "fmt"

// Role distinguishes end users from the support pool.
type Role string

const (
	RoleMember  Role = "member"
	RoleSupport Role = "support"
)

// ParseRole validates a role claim.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleMember, RoleSupport:
		return Role(s), nil
	case "":
		return RoleMember, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Identity is the verified principal behind a session.
type Identity struct {
	UserID string
	Name   string
	Role   Role
}

// IsSupport reports whether the identity belongs to the support pool.
func (i Identity) IsSupport() bool {
	return i.Role == RoleSupport
}

// DisplayName returns Name, falling back to UserID.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.UserID
}
