package domain

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleLabTech Role = "lab_tech"
	RoleUser    Role = "user"
)

// IsStaff reports whether the role may manage tools and maintenance.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleLabTech
}

// Principal is the authenticated caller of a workflow operation.
type Principal struct {
	UserID int32 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (p Principal) IsStaff() bool {
	return p.Role.IsStaff()
}

// User is the read-only directory view used when relaying notifications.
type User struct {
	ID                 int32  `json:"id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	Role               Role   `json:"role"`
	EmailNotifications bool   `json:"email_notifications"`
}
