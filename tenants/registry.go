package tenants

import (
	"context"
	"slices"
	"sync"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// API is the part of the remote API the registry calls
type API interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	SwitchTenant(ctx context.Context, tenantID string) error
	CreateTenant(ctx context.Context, in CreateRequest) (*Tenant, error)
	UpdateTenant(ctx context.Context, tenantID string, in UpdateRequest) (*Tenant, error)
}

// Identity is the authenticated session the registry operates under
type Identity interface {
	Authenticated() bool
	SetTenant(tenantID string)
}

// Snapshot is a consistent read of the registry
type Snapshot struct {
	Tenants   []Tenant
	Current   *Tenant
	IsLoading bool
	Err       error
}

// Registry holds the tenants the session may act as and the active one.
// The active selection is persisted under tokenstore.KeyCurrentTenant.
type Registry struct {
	api      API
	identity Identity
	store    *tokenstore.Session
	logger   zerolog.Logger

	lock    sync.RWMutex
	tenants []Tenant
	current *Tenant
	loading bool
	err     error
	// generation is bumped by every Refresh and Invalidate, epoch only by
	// Invalidate. A list fetched under an older generation, or any result
	// fetched under an older epoch or once the session is gone, is dropped.
	generation uint64
	epoch      uint64
}

type RegistryOption func(*Registry)

func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

func NewRegistry(api API, identity Identity, store *tokenstore.Session, options ...RegistryOption) (*Registry, error) {
	if api == nil {
		return nil, errors.New("[tenants.NewRegistry] api is required")
	}
	if identity == nil {
		return nil, errors.New("[tenants.NewRegistry] identity is required")
	}
	if store == nil {
		return nil, errors.New("[tenants.NewRegistry] store is required")
	}
	r := &Registry{
		api:      api,
		identity: identity,
		store:    store,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

func (r *Registry) Snapshot() Snapshot {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return Snapshot{
		Tenants:   slices.Clone(r.tenants),
		Current:   copyTenant(r.current),
		IsLoading: r.loading,
		Err:       r.err,
	}
}

func (r *Registry) Tenants() []Tenant {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return slices.Clone(r.tenants)
}

// Current returns the active tenant, or nil when none is selected
func (r *Registry) Current() *Tenant {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return copyTenant(r.current)
}

// Restore loads the persisted selection when nothing is selected yet. The
// next Refresh keeps it only if the fetched list still contains it.
func (r *Registry) Restore() error {
	var t Tenant
	ok, err := r.store.LoadJSON(tokenstore.KeyCurrentTenant, &t)
	if err != nil {
		return errors.Wrapf(err, "[Registry.Restore] load selection")
	}
	if !ok || t.ID == "" {
		return nil
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.current == nil {
		r.current = &t
	}
	return nil
}

// Refresh fetches the tenant list for the current session and revalidates the
// selection. It fails with ErrNotAuthenticated before the session is authenticated.
func (r *Registry) Refresh(ctx context.Context) ([]Tenant, error) {
	if !r.identity.Authenticated() {
		return nil, errors.Wrapf(errors.ErrNotAuthenticated, "[Registry.Refresh]")
	}

	r.lock.Lock()
	r.generation++
	gen := r.generation
	r.loading = true
	r.lock.Unlock()

	list, err := r.api.ListTenants(ctx)

	r.lock.Lock()
	defer r.lock.Unlock()
	if gen != r.generation {
		r.logger.Info().Msg("discarding superseded tenant list")
		return slices.Clone(r.tenants), nil
	}
	r.loading = false
	if !r.identity.Authenticated() {
		r.logger.Info().Msg("discarding tenant list fetched by an ended session")
		return slices.Clone(r.tenants), nil
	}
	if err != nil {
		r.err = err
		r.logger.Err(err).Msg("refresh tenants")
		return nil, err
	}

	r.tenants = list
	r.err = nil
	selected := r.selectFrom(list)
	if err := r.persistSelection(selected); err != nil {
		r.err = err
		return slices.Clone(list), err
	}
	r.current = selected
	return slices.Clone(list), nil
}

// ended reports whether the session a result was fetched under is gone. Callers hold the lock.
func (r *Registry) ended(epoch uint64) bool {
	return epoch != r.epoch || !r.identity.Authenticated()
}

// selectFrom keeps the current selection when it is still listed, otherwise
// the first tenant
func (r *Registry) selectFrom(list []Tenant) *Tenant {
	if len(list) == 0 {
		return nil
	}
	if r.current != nil {
		if t, ok := Find(list, r.current.ID); ok {
			return &t
		}
		r.logger.Info().Str("tenant", r.current.ID).Msg("selected tenant no longer listed")
	}
	first := list[0]
	return &first
}

func (r *Registry) persistSelection(t *Tenant) error {
	if t == nil {
		return errors.Wrapf(r.store.Remove(tokenstore.KeyCurrentTenant), "[Registry] clear selection")
	}
	return errors.Wrapf(r.store.SaveJSON(tokenstore.KeyCurrentTenant, t), "[Registry] persist selection")
}

// SwitchTenant makes tenantID the active tenant. Only tenants from the last
// fetched list are accepted. The selection is stored locally before the server
// is told; if the server call fails the local selection stays and the error is
// returned and kept in Snapshot.Err.
func (r *Registry) SwitchTenant(ctx context.Context, tenantID string) error {
	r.lock.Lock()
	t, ok := Find(r.tenants, tenantID)
	if !ok {
		err := errors.Wrapf(errors.ErrTenantNotFound, "[Registry.SwitchTenant] %q", tenantID)
		r.err = err
		r.lock.Unlock()
		return err
	}
	err := r.selectLocked(&t)
	r.lock.Unlock()
	if err != nil {
		return err
	}
	return r.announce(ctx, tenantID)
}

func (r *Registry) selectLocked(t *Tenant) error {
	if err := r.persistSelection(t); err != nil {
		r.err = err
		return err
	}
	r.current = copyTenant(t)
	r.err = nil
	return nil
}

// announce tells the session and then the server about a new selection
func (r *Registry) announce(ctx context.Context, tenantID string) error {
	r.identity.SetTenant(tenantID)

	if err := r.api.SwitchTenant(ctx, tenantID); err != nil {
		r.logger.Warn().Err(err).Str("tenant", tenantID).Msg("server rejected tenant switch, keeping local selection")
		r.lock.Lock()
		r.err = err
		r.lock.Unlock()
		return err
	}
	return nil
}

// CreateTenant creates a tenant, adds it to the list and switches to it. API
// errors are returned unchanged. A tenant created after the session ended is
// returned but not applied.
func (r *Registry) CreateTenant(ctx context.Context, in CreateRequest) (*Tenant, error) {
	r.lock.RLock()
	epoch := r.epoch
	r.lock.RUnlock()

	t, err := r.api.CreateTenant(ctx, in)
	if err != nil {
		r.lock.Lock()
		if !r.ended(epoch) {
			r.err = err
		}
		r.lock.Unlock()
		return nil, err
	}

	r.lock.Lock()
	if r.ended(epoch) {
		r.lock.Unlock()
		r.logger.Info().Str("tenant", t.ID).Msg("discarding tenant created by an ended session")
		return copyTenant(t), nil
	}
	if _, ok := Find(r.tenants, t.ID); !ok {
		r.tenants = append(r.tenants, *t)
	}
	err = r.selectLocked(t)
	r.lock.Unlock()
	if err != nil {
		return copyTenant(t), err
	}
	return copyTenant(t), r.announce(ctx, t.ID)
}

// UpdateTenant updates a tenant and replaces the local copy
func (r *Registry) UpdateTenant(ctx context.Context, tenantID string, in UpdateRequest) (*Tenant, error) {
	t, err := r.api.UpdateTenant(ctx, tenantID, in)
	if err != nil {
		r.lock.Lock()
		r.err = err
		r.lock.Unlock()
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()
	if i := slices.IndexFunc(r.tenants, func(x Tenant) bool { return x.ID == t.ID }); i >= 0 {
		r.tenants[i] = *t
	}
	if r.current != nil && r.current.ID == t.ID {
		if err := r.persistSelection(t); err != nil {
			return copyTenant(t), err
		}
		r.current = copyTenant(t)
	}
	return copyTenant(t), nil
}

// Invalidate drops the list and selection from memory. Fetches still in
// flight are discarded when they complete.
func (r *Registry) Invalidate() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.generation++
	r.epoch++
	r.tenants = nil
	r.current = nil
	r.loading = false
	r.err = nil
}

func copyTenant(t *Tenant) *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
