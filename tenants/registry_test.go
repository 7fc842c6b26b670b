package tenants_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/utils"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/jrsteele09/go-tenant-session/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

type fakeIdentity struct {
	authenticated bool
	tenantID      string
	switched      []string
}

func (f *fakeIdentity) Authenticated() bool { return f.authenticated }
func (f *fakeIdentity) SetTenant(tenantID string) {
	f.tenantID = tenantID
	f.switched = append(f.switched, tenantID)
}

type fakeAPI struct {
	lock      sync.Mutex
	list      []tenants.Tenant
	listErr   error
	switchErr error
	createErr error
	switches  []string
	// listGate, when set, blocks ListTenants until closed
	listGate chan struct{}
	// createGate, when set, blocks CreateTenant until closed; createStarted
	// is closed once the call is in flight
	createGate    chan struct{}
	createStarted chan struct{}
}

func (f *fakeAPI) ListTenants(ctx context.Context) ([]tenants.Tenant, error) {
	if f.listGate != nil {
		<-f.listGate
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]tenants.Tenant(nil), f.list...), nil
}

func (f *fakeAPI) SwitchTenant(ctx context.Context, tenantID string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.switches = append(f.switches, tenantID)
	return f.switchErr
}

func (f *fakeAPI) CreateTenant(ctx context.Context, in tenants.CreateRequest) (*tenants.Tenant, error) {
	if f.createGate != nil {
		close(f.createStarted)
		<-f.createGate
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	t := tenants.Tenant{ID: "t3", Name: in.Name, IsActive: true}
	f.list = append(f.list, t)
	return &t, nil
}

func (f *fakeAPI) UpdateTenant(ctx context.Context, tenantID string, in tenants.UpdateRequest) (*tenants.Tenant, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	for i := range f.list {
		if f.list[i].ID == tenantID {
			in.Apply(&f.list[i])
			t := f.list[i]
			return &t, nil
		}
	}
	return nil, errors.ErrNotFound
}

type testFixture struct {
	api      *fakeAPI
	identity *fakeIdentity
	store    *tokenstore.MemoryStore
	session  *tokenstore.Session
	registry *tenants.Registry
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		api: &fakeAPI{list: []tenants.Tenant{
			{ID: "t1", Name: "Acme", IsActive: true},
			{ID: "t2", Name: "Beta", IsActive: true},
		}},
		identity: &fakeIdentity{authenticated: true, tenantID: "t1"},
		store:    tokenstore.NewMemoryStore(),
	}
	var err error
	f.session, err = tokenstore.NewSession(f.store)
	require.NoError(t, err)
	f.registry, err = tenants.NewRegistry(f.api, f.identity, f.session, tenants.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	return f
}

func (f *testFixture) storedSelection(t *testing.T) string {
	t.Helper()
	id, err := f.session.CurrentTenantID()
	require.NoError(t, err)
	return id
}

func TestRefresh_SelectsFirstTenant(t *testing.T) {
	f := setupTestFixture(t)

	list, err := f.registry.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Acme", list[0].Name)
	require.Equal(t, "Beta", list[1].Name)

	snap := f.registry.Snapshot()
	require.Equal(t, "t1", snap.Current.ID)
	require.False(t, snap.IsLoading)
	require.NoError(t, snap.Err)
	require.Equal(t, "t1", f.storedSelection(t))
}

func TestRefresh_FirstTenantOverSessionTenant(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.session.SaveUser(&users.User{ID: "u1", TenantID: "t2"}))
	f.identity.tenantID = "t2"

	_, err := f.registry.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "t1", f.registry.Current().ID)
	require.Equal(t, "t1", f.storedSelection(t))
}

func TestRefresh_Idempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.SwitchTenant(ctx, "t2"))

	first := f.registry.Snapshot()
	_, err = f.registry.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, first.Tenants, f.registry.Tenants())
	require.Equal(t, "t2", f.registry.Current().ID)
}

func TestRefresh_ZeroTenantsLeavesNoSelection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	f.api.list = nil
	list, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
	require.Nil(t, f.registry.Current())
	require.Empty(t, f.storedSelection(t))
}

func TestRefresh_DropsSelectionNoLongerListed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, f.registry.SwitchTenant(ctx, "t2"))

	f.api.list = f.api.list[:1]
	_, err = f.registry.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "t1", f.registry.Current().ID)
}

func TestRefresh_RequiresAuthentication(t *testing.T) {
	f := setupTestFixture(t)
	f.identity.authenticated = false

	_, err := f.registry.Refresh(context.Background())
	require.ErrorIs(t, err, errors.ErrNotAuthenticated)
	require.Empty(t, f.registry.Tenants())
}

func TestRefresh_ErrorKeepsList(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	f.api.listErr = errors.ErrNetwork
	_, err = f.registry.Refresh(ctx)
	require.ErrorIs(t, err, errors.ErrNetwork)

	snap := f.registry.Snapshot()
	require.Len(t, snap.Tenants, 2)
	require.Equal(t, "t1", snap.Current.ID)
	require.ErrorIs(t, snap.Err, errors.ErrNetwork)
	require.False(t, snap.IsLoading)
}

func TestRefresh_DiscardedAfterInvalidate(t *testing.T) {
	f := setupTestFixture(t)
	f.api.listGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.Refresh(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return f.registry.Snapshot().IsLoading }, timeout, tick)
	f.registry.Invalidate()
	close(f.api.listGate)
	require.NoError(t, <-done)

	snap := f.registry.Snapshot()
	require.Empty(t, snap.Tenants)
	require.Nil(t, snap.Current)
	require.False(t, snap.IsLoading)
}

func TestRefresh_DiscardedWhenSessionEndsFirst(t *testing.T) {
	f := setupTestFixture(t)
	f.api.listGate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.registry.Refresh(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return f.registry.Snapshot().IsLoading }, timeout, tick)
	f.identity.authenticated = false
	require.NoError(t, f.session.Clear())
	close(f.api.listGate)
	require.NoError(t, <-done)

	snap := f.registry.Snapshot()
	require.Empty(t, snap.Tenants)
	require.Nil(t, snap.Current)
	require.False(t, snap.IsLoading)
	require.Zero(t, f.store.Len())
}

func TestSwitchTenant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	require.NoError(t, f.registry.SwitchTenant(ctx, "t2"))
	require.Equal(t, "t2", f.registry.Current().ID)
	require.Equal(t, "t2", f.storedSelection(t))
	require.Equal(t, []string{"t2"}, f.api.switches)
	require.Equal(t, []string{"t2"}, f.identity.switched)
}

func TestSwitchTenant_UnknownTenant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	err = f.registry.SwitchTenant(ctx, "t9")
	require.ErrorIs(t, err, errors.ErrTenantNotFound)
	require.Equal(t, "t1", f.registry.Current().ID)
	require.Equal(t, "t1", f.storedSelection(t))
	require.Empty(t, f.api.switches)
	require.ErrorIs(t, f.registry.Snapshot().Err, errors.ErrTenantNotFound)
}

func TestSwitchTenant_ServerFailureKeepsLocalSelection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	f.api.switchErr = errors.ErrNetwork

	err = f.registry.SwitchTenant(ctx, "t2")
	require.ErrorIs(t, err, errors.ErrNetwork)
	require.Equal(t, "t2", f.registry.Current().ID)
	require.Equal(t, "t2", f.storedSelection(t))
	require.ErrorIs(t, f.registry.Snapshot().Err, errors.ErrNetwork)
}

func TestCreateTenant_SwitchesToNewTenant(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	created, err := f.registry.CreateTenant(ctx, tenants.CreateRequest{Name: "NewCo", Email: "a@b.com", Password: "pw123456"})
	require.NoError(t, err)
	require.Equal(t, "t3", created.ID)

	require.Len(t, f.registry.Tenants(), 3)
	require.Equal(t, "t3", f.registry.Current().ID)
	require.Equal(t, []string{"t3"}, f.api.switches)
}

func TestCreateTenant_DiscardedAfterLogout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	f.api.createGate = make(chan struct{})
	f.api.createStarted = make(chan struct{})

	type result struct {
		tenant *tenants.Tenant
		err    error
	}
	done := make(chan result, 1)
	go func() {
		created, err := f.registry.CreateTenant(ctx, tenants.CreateRequest{Name: "NewCo"})
		done <- result{created, err}
	}()

	<-f.api.createStarted
	require.NoError(t, f.session.Clear())
	f.registry.Invalidate()
	f.identity.authenticated = false
	close(f.api.createGate)

	res := <-done
	require.NoError(t, res.err)
	require.Equal(t, "t3", res.tenant.ID)

	snap := f.registry.Snapshot()
	require.Empty(t, snap.Tenants)
	require.Nil(t, snap.Current)
	require.Zero(t, f.store.Len())
	require.Empty(t, f.api.switches)
	require.Empty(t, f.identity.switched)
}

func TestCreateTenant_ErrorUnchanged(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)
	f.api.createErr = errors.ErrServerValidation

	_, err = f.registry.CreateTenant(ctx, tenants.CreateRequest{Name: "NewCo"})
	require.Equal(t, errors.ErrServerValidation, err)
	require.Len(t, f.registry.Tenants(), 2)
	require.Equal(t, "t1", f.registry.Current().ID)
}

func TestUpdateTenant_RefreshesCurrent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	_, err := f.registry.Refresh(ctx)
	require.NoError(t, err)

	updated, err := f.registry.UpdateTenant(ctx, "t1", tenants.UpdateRequest{Name: utils.Ptr("Acme Ltd")})
	require.NoError(t, err)
	require.Equal(t, "Acme Ltd", updated.Name)
	require.Equal(t, "Acme Ltd", f.registry.Current().Name)
	require.Equal(t, "Acme Ltd", f.registry.Tenants()[0].Name)

	var stored tenants.Tenant
	ok, err := f.session.LoadJSON(tokenstore.KeyCurrentTenant, &stored)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Acme Ltd", stored.Name)
}

func TestRestore(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.session.SaveJSON(tokenstore.KeyCurrentTenant, tenants.Tenant{ID: "t2", Name: "Beta"}))

	require.NoError(t, f.registry.Restore())
	require.Equal(t, "t2", f.registry.Current().ID)

	_, err := f.registry.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "t2", f.registry.Current().ID)
}

func TestInvalidate(t *testing.T) {
	f := setupTestFixture(t)
	_, err := f.registry.Refresh(context.Background())
	require.NoError(t, err)

	f.registry.Invalidate()
	snap := f.registry.Snapshot()
	require.Empty(t, snap.Tenants)
	require.Nil(t, snap.Current)
	require.NoError(t, snap.Err)
}

func TestNewRegistry_Validation(t *testing.T) {
	session, err := tokenstore.NewSession(tokenstore.NewMemoryStore())
	require.NoError(t, err)

	_, err = tenants.NewRegistry(nil, &fakeIdentity{}, session)
	require.Error(t, err)
	_, err = tenants.NewRegistry(&fakeAPI{}, nil, session)
	require.Error(t, err)
	_, err = tenants.NewRegistry(&fakeAPI{}, &fakeIdentity{}, nil)
	require.Error(t, err)
}
