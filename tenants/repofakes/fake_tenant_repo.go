package tenantrepofakes

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-session/tenants"
)

var _ tenants.Repo = (*FakeTenantRepo)(nil)

type FakeTenantRepo struct {
	tenants map[string]*tenants.Tenant
	lock    sync.RWMutex
}

func NewFakeTenantRepo() tenants.Repo {
	return &FakeTenantRepo{
		tenants: make(map[string]*tenants.Tenant),
	}
}

func (tr *FakeTenantRepo) Upsert(tenantData *tenants.Tenant) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if tenantData.ID == "" {
		tenantData.ID = uuid.New().String()
	}
	if tenantData.CreatedAt == nil {
		now := time.Now().UTC()
		tenantData.CreatedAt = &now
	}
	cpy := *tenantData
	tr.tenants[tenantData.ID] = &cpy
	return nil
}

func (tr *FakeTenantRepo) Get(tenantID string) (*tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tenants[tenantID]
	if !ok {
		return nil, errors.New("not found")
	}
	cpy := *t
	return &cpy, nil
}

// List returns the requested tenants in the order given, skipping unknown ids
func (tr *FakeTenantRepo) List(tenantIDs []string) ([]tenants.Tenant, error) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	list := make([]tenants.Tenant, 0, len(tenantIDs))
	for _, id := range tenantIDs {
		if t, ok := tr.tenants[id]; ok {
			list = append(list, *t)
		}
	}
	return list, nil
}
