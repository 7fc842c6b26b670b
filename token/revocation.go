package token

import (
	"sync"
	"time"
)

// Revocations remembers the ids of access tokens ended by logout. An entry is
// only needed until its token would have expired anyway, so expired entries
// are pruned each time another token is revoked.
type Revocations struct {
	lock    sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewRevocations uses time.Now when now is nil
func NewRevocations(now func() time.Time) *Revocations {
	if now == nil {
		now = time.Now
	}
	return &Revocations{
		expires: make(map[string]time.Time),
		now:     now,
	}
}

// Revoke records jti until exp. Tokens that have already expired are not recorded.
func (r *Revocations) Revoke(jti string, exp time.Time) {
	if jti == "" {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	now := r.now()
	r.prune(now)
	if exp.After(now) {
		r.expires[jti] = exp
	}
}

func (r *Revocations) IsRevoked(jti string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	exp, ok := r.expires[jti]
	return ok && exp.After(r.now())
}

// Len is the number of tracked ids, including any not yet pruned
func (r *Revocations) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.expires)
}

func (r *Revocations) prune(now time.Time) {
	for jti, exp := range r.expires {
		if !exp.After(now) {
			delete(r.expires, jti)
		}
	}
}
