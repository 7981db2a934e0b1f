package requirements

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/permitflow/go-services/internal/permit"
)

type checklistEntry struct {
	PermitType   string                `yaml:"permit_type"`
	CountyID     string                `yaml:"county_id"`
	Requirements []*permit.Requirement `yaml:"requirements"`
}

type checklistFile struct {
	Default    []*permit.Requirement `yaml:"default"`
	Checklists []checklistEntry      `yaml:"checklists"`
}

// LoadChecklist reads a YAML checklist file. Entries with a county_id apply
// only to that county; entries without one apply to the permit type in every
// county that has no more specific entry.
func LoadChecklist(path string) (*Checklist, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist: %w", err)
	}
	return ParseChecklist(raw)
}

// ParseChecklist builds a Checklist from YAML bytes.
func ParseChecklist(raw []byte) (*Checklist, error) {
	var file checklistFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse checklist: %w", err)
	}

	if err := validateRequirements("default", file.Default); err != nil {
		return nil, err
	}
	c := NewChecklist(file.Default)
	for _, entry := range file.Checklists {
		if entry.PermitType == "" {
			return nil, fmt.Errorf("checklist entry missing permit_type")
		}
		if err := validateRequirements(entry.PermitType, entry.Requirements); err != nil {
			return nil, err
		}
		if entry.CountyID != "" {
			c.byTypeCounty[typeCountyKey(entry.PermitType, entry.CountyID)] = entry.Requirements
		} else {
			c.byType[entry.PermitType] = entry.Requirements
		}
	}
	return c, nil
}

func validateRequirements(scope string, reqs []*permit.Requirement) error {
	for i, r := range reqs {
		if r.Category == "" {
			return fmt.Errorf("checklist %s: requirement %d has no category", scope, i)
		}
		if r.ID == "" {
			r.ID = r.Category
		}
		if r.Label == "" {
			r.Label = r.Category
		}
	}
	return nil
}
