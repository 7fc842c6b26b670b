package mockapi

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-tenant-session/users"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	TenantID string `json:"tenantId,omitempty"`
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Username  string `json:"username,omitempty" validate:"omitempty,max=150"`
	FirstName string `json:"firstName" validate:"required,max=150"`
	LastName  string `json:"lastName" validate:"required,max=150"`
	TenantID  string `json:"tenantId,omitempty"`
}

type authResponse struct {
	Token   string      `json:"token"`
	Refresh string      `json:"refresh"`
	User    *users.User `json:"user"`
}

type tokenRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type switchTenantRequest struct {
	TenantID string `json:"tenantId" validate:"required"`
}

var tokenNotValid = map[string]string{
	"detail": "Token is invalid or expired",
	"code":   "token_not_valid",
}

// userView is the client's view of account acting as tenantID
func userView(account *users.Account, tenantID string) *users.User {
	u := account.User
	u.TenantID = tenantID
	return &u
}

// defaultTenant picks the tenant a login lands in
func defaultTenant(account *users.Account) string {
	if account.TenantID != "" && account.HasTenant(account.TenantID) {
		return account.TenantID
	}
	if len(account.TenantIDs) > 0 {
		return account.TenantIDs[0]
	}
	return ""
}

func (s *Server) issueTokens(account *users.Account, tenantID string) (*authResponse, error) {
	user := userView(account, tenantID)
	access, err := s.creator.CreateAccessToken(user, tenantID)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.refresh.Create(account.ID, tenantID)
	if err != nil {
		return nil, err
	}
	s.recordIssued(*access)
	return &authResponse{Token: *access, Refresh: *refreshToken, User: user}, nil
}

func (s *Server) HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		account, err := s.repos.Users.GetByEmail(req.Email)
		if err != nil || !account.Active || !users.CheckPasswordHash(req.Password, account.PasswordHash) {
			writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}

		tenantID := req.TenantID
		if tenantID == "" {
			tenantID = defaultTenant(account)
		} else if !account.HasTenant(tenantID) {
			writeJSON(w, http.StatusBadRequest, FieldErrors{"tenantId": {"You are not a member of this tenant."}})
			return
		}

		resp, err := s.issueTokens(account, tenantID)
		if err != nil {
			s.logger.Err(err).Msg("issue tokens on login")
			writeDetail(w, http.StatusInternalServerError, "Could not issue tokens.")
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		s.writeLock.Lock()
		defer s.writeLock.Unlock()

		if _, err := s.repos.Users.GetByEmail(req.Email); err == nil {
			writeJSON(w, http.StatusBadRequest, FieldErrors{"email": {"A user with that email already exists."}})
			return
		}
		account := &users.Account{
			User: users.User{
				Email:     req.Email,
				Username:  req.Username,
				FirstName: req.FirstName,
				LastName:  req.LastName,
				Role:      users.RoleMember,
			},
			Active: true,
		}
		if req.TenantID != "" {
			if _, err := s.repos.Tenants.Get(req.TenantID); err != nil {
				writeJSON(w, http.StatusBadRequest, FieldErrors{"tenantId": {"Invalid tenant."}})
				return
			}
			account.TenantID = req.TenantID
			account.AddTenant(req.TenantID)
		}

		hash, err := users.HashPassword(req.Password)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not store password.")
			return
		}
		account.PasswordHash = hash
		if err := s.repos.Users.Upsert(account); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not create account.")
			return
		}

		resp, err := s.issueTokens(account, account.TenantID)
		if err != nil {
			s.logger.Err(err).Msg("issue tokens on register")
			writeDetail(w, http.StatusInternalServerError, "Could not issue tokens.")
			return
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func (s *Server) Refresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		rt, err := s.refresh.Validate(req.Refresh)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, tokenNotValid)
			return
		}
		account, err := s.repos.Users.GetByID(rt.UserID)
		if err != nil || !account.Active {
			writeJSON(w, http.StatusUnauthorized, tokenNotValid)
			return
		}

		access, err := s.creator.CreateAccessToken(userView(account, rt.TenantID), rt.TenantID)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not issue tokens.")
			return
		}
		s.recordIssued(*access)

		resp := map[string]string{"access": *access}
		if s.rotate {
			rotated, err := s.refresh.Create(account.ID, rt.TenantID)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "Could not issue tokens.")
				return
			}
			resp["refresh"] = *rotated
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		s.revoked.Revoke(claims.JTI, claims.Exp)
		if err := s.refresh.DeleteForUser(claims.Sub); err != nil {
			s.logger.Err(err).Msg("delete refresh token on logout")
		}
		writeDetail(w, http.StatusOK, "Successfully logged out.")
	}
}

func (s *Server) VerifyToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		claims, err := s.inspector.Introspect(req.Token)
		if err != nil || !claims.Active {
			writeJSON(w, http.StatusUnauthorized, tokenNotValid)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{})
	}
}

func (s *Server) Profile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		account, err := s.repos.Users.GetByID(claims.Sub)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "User not found.")
			return
		}
		// the active tenant follows switch-tenant, not the token's claim
		writeJSON(w, http.StatusOK, userView(account, defaultTenant(account)))
	}
}

func (s *Server) SwitchTenant() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req switchTenantRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		s.recordSwitch(req.TenantID)

		s.writeLock.Lock()
		defer s.writeLock.Unlock()

		claims := claimsFrom(r.Context())
		account, err := s.repos.Users.GetByID(claims.Sub)
		if err != nil {
			writeDetail(w, http.StatusNotFound, "User not found.")
			return
		}
		if !account.HasTenant(req.TenantID) {
			writeDetail(w, http.StatusForbidden, fmt.Sprintf("You do not have access to tenant %s.", req.TenantID))
			return
		}

		account.TenantID = req.TenantID
		if err := s.repos.Users.Upsert(account); err != nil {
			writeDetail(w, http.StatusInternalServerError, "Could not switch tenant.")
			return
		}
		// later refreshes issue tokens for the new tenant
		if err := s.refresh.SetTenantForUser(account.ID, req.TenantID); err != nil {
			s.logger.Debug().Err(err).Msg("no refresh token to move on tenant switch")
		}
		writeJSON(w, http.StatusOK, map[string]string{"tenantId": req.TenantID})
	}
}
