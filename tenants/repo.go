package tenants

// Repo is the backend-side tenant storage used by the mock API
type Repo interface {
	Upsert(tenantData *Tenant) error
	Get(tenantID string) (*Tenant, error)
	List(tenantIDs []string) ([]Tenant, error)
}
