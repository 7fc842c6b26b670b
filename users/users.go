package users

import (
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// RoleType is the user's role inside their current tenant
type RoleType string

const (
	RoleOwner  RoleType = "owner"
	RoleAdmin  RoleType = "admin"
	RoleMember RoleType = "member"
	RoleViewer RoleType = "viewer"
)

// User is the identity record returned by the API with login, signup and profile
// calls. It is cached verbatim in the token store.
type User struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Username    string   `json:"username,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Role        RoleType `json:"role,omitempty"`
	TenantID    string   `json:"tenantId,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// DisplayName returns "First Last", falling back to the username and then the email
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

func (u *User) HasPermission(permission string) bool {
	return u != nil && slices.Contains(u.Permissions, permission)
}

// Account is the backend-side record behind a User: credentials and tenant memberships.
type Account struct {
	User
	PasswordHash string   `json:"-"` // never serialize
	TenantIDs    []string `json:"-"`
	Active       bool     `json:"-"`
}

func (a *Account) HasTenant(tenantID string) bool {
	return slices.Contains(a.TenantIDs, tenantID)
}

// AddTenant records membership once
func (a *Account) AddTenant(tenantID string) {
	if !a.HasTenant(tenantID) {
		a.TenantIDs = append(a.TenantIDs, tenantID)
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
