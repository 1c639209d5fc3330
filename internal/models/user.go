package models

import "time"

const (
	RoleStudent = "student"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
