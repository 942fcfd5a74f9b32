package model

import "time"

type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// CanManageBilling reports whether the role may initiate purchases.
func (r Role) CanManageBilling() bool {
	return r == RoleOwner || r == RoleAdmin
}

type User struct {
	ID        string
	CompanyID string
	Email     string
	Role      Role
	CreatedAt time.Time
}
