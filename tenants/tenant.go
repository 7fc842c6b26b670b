package tenants

import "time"

// Tenant is an organization the current user may operate as. The set of
// visible tenants always comes from the API and is never computed locally.
type Tenant struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Domain    string         `json:"domain,omitempty"`
	Settings  map[string]any `json:"settings,omitempty"`
	IsActive  bool           `json:"isActive"`
	CreatedAt *time.Time     `json:"createdAt,omitempty"`
}

// CreateRequest bootstraps a tenant together with its first admin account
type CreateRequest struct {
	Name     string         `json:"name" validate:"required,max=100"`
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8"`
	Domain   string         `json:"domain,omitempty" validate:"omitempty,hostname"`
	Settings map[string]any `json:"settings,omitempty"`
}

// UpdateRequest changes the fields that are set
type UpdateRequest struct {
	Name     *string        `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Domain   *string        `json:"domain,omitempty" validate:"omitempty,hostname"`
	Settings map[string]any `json:"settings,omitempty"`
	IsActive *bool          `json:"isActive,omitempty"`
}

// Apply copies the set fields onto t
func (u UpdateRequest) Apply(t *Tenant) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Domain != nil {
		t.Domain = *u.Domain
	}
	if u.Settings != nil {
		t.Settings = u.Settings
	}
	if u.IsActive != nil {
		t.IsActive = *u.IsActive
	}
}

// Find returns the tenant with the given id from list
func Find(list []Tenant, tenantID string) (Tenant, bool) {
	for _, t := range list {
		if t.ID == tenantID {
			return t, true
		}
	}
	return Tenant{}, false
}
