package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/permitflow/go-services/internal/permit"
)

// MemoryRepo is an in-memory Repository used by unit tests and the
// development backend. All methods copy records in and out, so a caller never
// shares memory with the store.
type MemoryRepo struct {
	mu          sync.RWMutex
	packages    map[string]*permit.Package
	documents   map[string]*permit.Document
	submissions map[string]*permit.BillingSubmission // keyed by package id
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		packages:    make(map[string]*permit.Package),
		documents:   make(map[string]*permit.Document),
		submissions: make(map[string]*permit.BillingSubmission),
	}
}

func clonePackage(p *permit.Package) *permit.Package {
	cp := *p
	if p.ReadyForBillingAt != nil {
		t := *p.ReadyForBillingAt
		cp.ReadyForBillingAt = &t
	}
	if p.SubmittedToBillingAt != nil {
		t := *p.SubmittedToBillingAt
		cp.SubmittedToBillingAt = &t
	}
	return &cp
}

func cloneDocument(d *permit.Document) *permit.Document {
	cd := *d
	if d.VerifiedAt != nil {
		t := *d.VerifiedAt
		cd.VerifiedAt = &t
	}
	return &cd
}

func (m *MemoryRepo) CreatePackage(_ context.Context, p *permit.Package) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = permit.StatusDraft
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.packages[p.ID] = clonePackage(p)
	return p.ID, nil
}

func (m *MemoryRepo) GetPackage(_ context.Context, id string) (*permit.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.packages[id]; ok {
		return clonePackage(p), nil
	}
	return nil, permit.ErrNotFound
}

func (m *MemoryRepo) ListPackages(_ context.Context, filter ListFilter) ([]*permit.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*permit.Package, 0, len(m.packages))
	for _, p := range m.packages {
		if filter.CustomerID != "" && p.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, clonePackage(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) TransitionStatus(_ context.Context, id string, from, to permit.Status, at time.Time, actor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return permit.ErrNotFound
	}
	if p.Status != from {
		return permit.ErrStatusConflict
	}
	p.Status = to
	p.UpdatedAt = at
	switch to {
	case permit.StatusReadyForBilling:
		t := at
		p.ReadyForBillingAt = &t
		p.ReadyForBillingBy = actor
	case permit.StatusSubmittedToBilling:
		t := at
		p.SubmittedToBillingAt = &t
		p.SubmittedToBillingBy = actor
	}
	return nil
}

func (m *MemoryRepo) CreateDocument(_ context.Context, d *permit.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.packages[d.PackageID]; !ok {
		return "", permit.ErrNotFound
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	m.documents[d.ID] = cloneDocument(d)
	return d.ID, nil
}

func (m *MemoryRepo) GetDocument(_ context.Context, id string) (*permit.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.documents[id]; ok {
		return cloneDocument(d), nil
	}
	return nil, permit.ErrNotFound
}

func (m *MemoryRepo) ListDocuments(_ context.Context, packageID string) ([]*permit.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*permit.Document{}
	for _, d := range m.documents {
		if d.PackageID == packageID {
			out = append(out, cloneDocument(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return permit.ErrNotFound
	}
	delete(m.documents, id)
	return nil
}

func (m *MemoryRepo) SetDocumentVerification(_ context.Context, id string, verified bool, actor string, at time.Time) (*permit.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, permit.ErrNotFound
	}
	d.VerifiedComplete = verified
	d.UpdatedAt = at
	if verified {
		t := at
		d.VerifiedAt = &t
		d.VerifiedBy = actor
	} else {
		d.VerifiedAt = nil
		d.VerifiedBy = ""
	}
	return cloneDocument(d), nil
}

func (m *MemoryRepo) ReplaceDocumentFile(_ context.Context, id string, file permit.FileInfo, at time.Time) (*permit.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return nil, permit.ErrNotFound
	}
	d.FileName = file.FileName
	d.SizeBytes = file.SizeBytes
	d.ContentType = file.ContentType
	d.StorageKey = file.StorageKey
	d.UpdatedAt = at
	// a new file invalidates the previous attestation
	d.VerifiedComplete = false
	d.VerifiedAt = nil
	d.VerifiedBy = ""
	return cloneDocument(d), nil
}

func (m *MemoryRepo) SubmitToBilling(_ context.Context, id, actor string, at time.Time) (*permit.BillingSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, permit.ErrNotFound
	}
	if p.Status != permit.StatusReadyForBilling {
		return nil, permit.ErrStatusConflict
	}
	t := at
	p.Status = permit.StatusSubmittedToBilling
	p.UpdatedAt = at
	p.SubmittedToBillingAt = &t
	p.SubmittedToBillingBy = actor
	sub := &permit.BillingSubmission{
		ID:          uuid.NewString(),
		PackageID:   id,
		SubmittedBy: actor,
		SubmittedAt: at,
	}
	m.submissions[id] = sub
	cp := *sub
	return &cp, nil
}

func (m *MemoryRepo) GetBillingSubmission(_ context.Context, packageID string) (*permit.BillingSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.submissions[packageID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, permit.ErrNotFound
}
