package mockapi

import (
	"sync"
	"time"
)

// controls let tests and local development script the backend's behavior
type controls struct {
	lock     sync.Mutex
	calls    map[string]int
	failures map[string]int
	delays   map[string]time.Duration
	issued   []string
	switches []string
}

func newControls() controls {
	return controls{
		calls:    make(map[string]int),
		failures: make(map[string]int),
		delays:   make(map[string]time.Duration),
	}
}

func (c *controls) record(path string) (int, time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls[path]++
	return c.failures[path], c.delays[path]
}

// Calls returns how many requests reached path
func (s *Server) Calls(path string) int {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	return s.controls.calls[path]
}

// Fail makes every request to path answer with status until ClearFailure
func (s *Server) Fail(path string, status int) {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	s.controls.failures[path] = status
}

func (s *Server) ClearFailure(path string) {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	delete(s.controls.failures, path)
}

// Delay holds every request to path for d before handling it
func (s *Server) Delay(path string, d time.Duration) {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	s.controls.delays[path] = d
}

// SwitchRequests returns the tenant ids posted to the switch endpoint, in order
func (s *Server) SwitchRequests() []string {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	return append([]string(nil), s.controls.switches...)
}

func (s *Server) recordSwitch(tenantID string) {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	s.controls.switches = append(s.controls.switches, tenantID)
}

func (s *Server) recordIssued(raw string) {
	s.controls.lock.Lock()
	defer s.controls.lock.Unlock()
	s.controls.issued = append(s.controls.issued, raw)
}

// ExpireAccessTokens revokes every access token issued so far. Refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.controls.lock.Lock()
	issued := s.controls.issued
	s.controls.issued = nil
	s.controls.lock.Unlock()

	for _, raw := range issued {
		claims, err := s.inspector.Introspect(raw)
		if err != nil || claims.JTI == "" {
			continue
		}
		s.revoked.Revoke(claims.JTI, claims.Exp)
	}
}
