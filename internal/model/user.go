package model

import "time"

// UserType is the closed set of account kinds the platform directory knows.
type UserType string

const (
	UserTypeStudent          UserType = "student"
	UserTypeCoordinator      UserType = "coordinator"
	UserTypeAdminCoordinator UserType = "admin_coordinator"
	UserTypeCompany          UserType = "company"
	UserTypeSystemAdmin      UserType = "system_admin"
)

// Valid reports whether t is one of the known account kinds.
func (t UserType) Valid() bool {
	switch t {
	case UserTypeStudent, UserTypeCoordinator, UserTypeAdminCoordinator, UserTypeCompany, UserTypeSystemAdmin:
		return true
	}
	return false
}

// User is a directory entry. The directory is owned by the platform;
// the messaging service only reads it.
type User struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url"`
	UserType  UserType  `json:"user_type"`
	CreatedAt time.Time `json:"created_at"`
}
