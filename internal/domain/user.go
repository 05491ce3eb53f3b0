package domain

import "time"

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid indica si el rol pertenece al conjunto conocido.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FullName     string     `json:"fullName"`
	CompanyName  string     `json:"companyName"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"-"`
	CreatedAt    time.Time  `json:"-"`
}

// Active indica si la cuenta puede iniciar sesion.
func (u User) Active() bool {
	return u.Status == UserActive
}

// UserProjection es la vista minima de usuario que se devuelve al cliente.
type UserProjection struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName"`
	Role        Role   `json:"role"`
}

func (u User) Projection() UserProjection {
	return UserProjection{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		CompanyName: u.CompanyName,
		Role:        u.Role,
	}
}
