package mockapi

import (
	"net/http"

	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/users"
)

func (s *Server) ListTenants() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		account, err := s.repos.Users.GetByID(claims.Sub)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "User not found.")
			return
		}
		list, err := s.repos.Tenants.List(account.TenantIDs)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not list tenants.")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateTenant creates a tenant and its first admin account. An authenticated
// caller is added as a member so it can switch to the new tenant.
func (s *Server) CreateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tenants.CreateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		s.writeLock.Lock()
		defer s.writeLock.Unlock()

		claims := claimsFrom(r.Context())
		existing, err := s.repos.Users.GetByEmail(req.Email)
		if err == nil && (claims == nil || existing.ID != claims.Sub) {
			writeJSON(w, http.StatusBadRequest, FieldErrors{"email": {"A user with that email already exists."}})
			return
		}

		tenant := &tenants.Tenant{
			Name:     req.Name,
			Domain:   req.Domain,
			Settings: req.Settings,
			IsActive: true,
		}
		if err := s.repos.Tenants.Upsert(tenant); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not create tenant.")
			return
		}

		if existing == nil {
			hash, err := users.HashPassword(req.Password)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "Could not store password.")
				return
			}
			admin := &users.Account{
				User: users.User{
					Email:    req.Email,
					Role:     users.RoleAdmin,
					TenantID: tenant.ID,
				},
				PasswordHash: hash,
				TenantIDs:    []string{tenant.ID},
				Active:       true,
			}
			if err := s.repos.Users.Upsert(admin); err != nil {
				writeDetail(w, http.StatusInternalServerError, "Could not create account.")
				return
			}
		}

		if claims != nil {
			if caller, err := s.repos.Users.GetByID(claims.Sub); err == nil {
				caller.AddTenant(tenant.ID)
				if err := s.repos.Users.Upsert(caller); err != nil {
					s.logger.Err(err).Msg("add caller to new tenant")
				}
			}
		}

		writeJSON(w, http.StatusCreated, map[string]*tenants.Tenant{"tenant": tenant})
	}
}

func (s *Server) UpdateTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("id")
		var req tenants.UpdateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		s.writeLock.Lock()
		defer s.writeLock.Unlock()

		claims := claimsFrom(r.Context())
		account, err := s.repos.Users.GetByID(claims.Sub)
		if err != nil || !account.HasTenant(tenantID) {
			writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
			return
		}
		tenant, err := s.repos.Tenants.Get(tenantID)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "Not found.")
			return
		}

		req.Apply(tenant)
		if err := s.repos.Tenants.Upsert(tenant); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not update tenant.")
			return
		}
		writeJSON(w, http.StatusOK, tenant)
	}
}
