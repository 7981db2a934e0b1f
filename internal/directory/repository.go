package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores directory records. Create assigns the ID and timestamps.
type Repository interface {
	CreateCustomer(ctx context.Context, c *Customer) (*Customer, error)
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]*Customer, error)

	CreateCounty(ctx context.Context, co *County) (*County, error)
	GetCounty(ctx context.Context, id string) (*County, error)
	ListCounties(ctx context.Context) ([]*County, error)

	CreateContractor(ctx context.Context, ct *Contractor) (*Contractor, error)
	GetContractor(ctx context.Context, id string) (*Contractor, error)
	ListContractors(ctx context.Context) ([]*Contractor, error)
}

// MemoryRepo is the in-memory Repository used by tests and the standalone
// development server.
type MemoryRepo struct {
	mu          sync.RWMutex
	customers   map[string]*Customer
	counties    map[string]*County
	contractors map[string]*Contractor
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		customers:   make(map[string]*Customer),
		counties:    make(map[string]*County),
		contractors: make(map[string]*Contractor),
	}
}

func (m *MemoryRepo) CreateCustomer(_ context.Context, c *Customer) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.customers[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepo) GetCustomer(_ context.Context, id string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (m *MemoryRepo) ListCustomers(_ context.Context) ([]*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Customer, 0, len(m.customers))
	for _, c := range m.customers {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepo) CreateCounty(_ context.Context, co *County) (*County, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *co
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.counties[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepo) GetCounty(_ context.Context, id string) (*County, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	co, ok := m.counties[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *co
	return &out, nil
}

func (m *MemoryRepo) ListCounties(_ context.Context) ([]*County, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*County, 0, len(m.counties))
	for _, co := range m.counties {
		cp := *co
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryRepo) CreateContractor(_ context.Context, ct *Contractor) (*Contractor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ct
	cp.ID = uuid.NewString()
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.contractors[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *MemoryRepo) GetContractor(_ context.Context, id string) (*Contractor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ct, ok := m.contractors[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *ct
	return &out, nil
}

func (m *MemoryRepo) ListContractors(_ context.Context) ([]*Contractor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Contractor, 0, len(m.contractors))
	for _, ct := range m.contractors {
		cp := *ct
		out = append(out, &cp)
	}
	return out, nil
}
