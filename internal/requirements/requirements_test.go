package requirements

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleChecklist = `
default:
  - category: application
    label: Permit Application
    mandatory: true
checklists:
  - permit_type: residential_solar
    requirements:
      - category: application
        label: Permit Application
        mandatory: true
      - category: site_survey
        label: Site Survey
        mandatory: true
  - permit_type: residential_solar
    county_id: county-7
    requirements:
      - category: application
        mandatory: true
      - category: site_survey
        mandatory: true
      - category: fire_setback_plan
        label: Fire Setback Plan
        mandatory: true
`

func TestParseChecklistResolution(t *testing.T) {
	c, err := ParseChecklist([]byte(sampleChecklist))
	require.NoError(t, err)
	ctx := context.Background()

	// exact type+county match
	reqs, err := c.RequirementsFor(ctx, "county-7", "residential_solar")
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.Equal(t, "fire_setback_plan", reqs[2].Category)

	// type match for any other county
	reqs, err = c.RequirementsFor(ctx, "county-1", "residential_solar")
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	// default for unknown type
	reqs, err = c.RequirementsFor(ctx, "county-1", "demolition")
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "application", reqs[0].Category)
}

func TestParseChecklistFillsIDAndLabel(t *testing.T) {
	c, err := ParseChecklist([]byte(sampleChecklist))
	require.NoError(t, err)

	reqs, err := c.RequirementsFor(context.Background(), "county-7", "residential_solar")
	require.NoError(t, err)
	assert.Equal(t, "site_survey", reqs[1].ID)
	assert.Equal(t, "site_survey", reqs[1].Label)
}

func TestParseChecklistRejectsBadEntries(t *testing.T) {
	_, err := ParseChecklist([]byte("checklists:\n  - county_id: c1\n"))
	assert.Error(t, err)

	_, err = ParseChecklist([]byte("default:\n  - label: nameless\n"))
	assert.Error(t, err)

	_, err = ParseChecklist([]byte(":\tnot yaml"))
	assert.Error(t, err)
}

func TestLoadChecklistFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleChecklist), 0o600))

	c, err := LoadChecklist(path)
	require.NoError(t, err)
	reqs, err := c.RequirementsFor(context.Background(), "", "residential_solar")
	require.NoError(t, err)
	assert.Len(t, reqs, 2)

	_, err = LoadChecklist(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultChecklist(t *testing.T) {
	reqs, err := Default().RequirementsFor(context.Background(), "any", "any")
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	assert.True(t, reqs[0].Mandatory)
	assert.False(t, reqs[2].Mandatory)
}
