package mockapi

import (
	"fmt"

	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/users"
)

// Demo credentials created by SeedDemo
const (
	DemoEmail    = "admin@example.com"
	DemoPassword = "secret123"
)

// AddTenant stores t as given, keeping its id when set
func (s *Server) AddTenant(t tenants.Tenant) (*tenants.Tenant, error) {
	if err := s.repos.Tenants.Upsert(&t); err != nil {
		return nil, fmt.Errorf("[Server.AddTenant] %w", err)
	}
	return &t, nil
}

// AddAccount stores an active account with the given password and memberships.
// The user's default tenant is the first membership unless already set.
func (s *Server) AddAccount(user users.User, password string, tenantIDs ...string) (*users.Account, error) {
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("[Server.AddAccount] hash password: %w", err)
	}
	if user.TenantID == "" && len(tenantIDs) > 0 {
		user.TenantID = tenantIDs[0]
	}
	account := &users.Account{
		User:         user,
		PasswordHash: hash,
		TenantIDs:    append([]string(nil), tenantIDs...),
		Active:       true,
	}
	if err := s.repos.Users.Upsert(account); err != nil {
		return nil, fmt.Errorf("[Server.AddAccount] %w", err)
	}
	return account, nil
}

// SeedDemo creates tenants t1 "Acme" and t2 "Beta" and an admin belonging to both
func (s *Server) SeedDemo() error {
	for _, t := range []tenants.Tenant{
		{ID: "t1", Name: "Acme", Domain: "acme.example.com", IsActive: true},
		{ID: "t2", Name: "Beta", Domain: "beta.example.com", IsActive: true},
	} {
		if _, err := s.AddTenant(t); err != nil {
			return err
		}
	}
	_, err := s.AddAccount(users.User{
		ID:        "u1",
		Email:     DemoEmail,
		Username:  "admin",
		FirstName: "Ada",
		LastName:  "Admin",
		Role:      users.RoleAdmin,
	}, DemoPassword, "t1", "t2")
	return err
}
