package model

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleTeacher || r == RoleAdmin
}

// IsStaff reports whether the role may read and publish any attempt.
func (r Role) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID string
	Role   Role
	Groups []string
}
