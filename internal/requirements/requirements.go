// Package requirements resolves the document checklist a permit package must
// satisfy before it can be marked ready for billing. Checklists are templates
// keyed by permit type and county; the lifecycle code treats them as
// read-only.
package requirements

import (
	"context"

	"github.com/permitflow/go-services/internal/permit"
)

// Source resolves the requirement set for a package. Resolution is by the
// most specific match: permit type plus county first, then permit type, then
// the default checklist. An empty result means no checklist applies and the
// gate falls back to requiring every uploaded document verified.
type Source interface {
	RequirementsFor(ctx context.Context, countyID, permitType string) ([]*permit.Requirement, error)
}

// Checklist is an in-memory Source.
type Checklist struct {
	defaults     []*permit.Requirement
	byType       map[string][]*permit.Requirement
	byTypeCounty map[string][]*permit.Requirement
}

func typeCountyKey(permitType, countyID string) string {
	return permitType + "|" + countyID
}

// NewChecklist builds a Source from a default set with no per-type overrides.
func NewChecklist(defaults []*permit.Requirement) *Checklist {
	return &Checklist{
		defaults:     defaults,
		byType:       make(map[string][]*permit.Requirement),
		byTypeCounty: make(map[string][]*permit.Requirement),
	}
}

// Default returns the compiled-in checklist used when no checklist file is
// configured: a permit application and a site survey, plus an optional
// contractor agreement.
func Default() *Checklist {
	return NewChecklist([]*permit.Requirement{
		{ID: "application", Category: "application", Label: "Permit Application", Mandatory: true},
		{ID: "site_survey", Category: "site_survey", Label: "Site Survey", Mandatory: true},
		{ID: "contractor_agreement", Category: "contractor_agreement", Label: "Contractor Agreement", Mandatory: false},
	})
}

func (c *Checklist) RequirementsFor(_ context.Context, countyID, permitType string) ([]*permit.Requirement, error) {
	if reqs, ok := c.byTypeCounty[typeCountyKey(permitType, countyID)]; ok {
		return reqs, nil
	}
	if reqs, ok := c.byType[permitType]; ok {
		return reqs, nil
	}
	return c.defaults, nil
}
