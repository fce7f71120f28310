package models

type UserType string

const (
	UserTypeRider   UserType = "rider"
	UserTypeAdmin   UserType = "admin"
	UserTypeService UserType = "service"
)

// Principal is the verified identity supplied by the identity provider.
// Credentials are never checked here.
type Principal struct {
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	UserType UserType `json:"user_type"`
}

func (p Principal) IsPrivileged() bool {
	return p.UserType == UserTypeAdmin || p.UserType == UserTypeService
}
