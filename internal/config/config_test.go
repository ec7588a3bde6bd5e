package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualflow/internal/domain"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Workflow.StrictPayloads)
	assert.Equal(t, DuplicateTitlesWarn, cfg.Workflow.DuplicateTitles)
	assert.Equal(t, "1.0", cfg.Registry.InitialVersion)
	assert.Len(t, cfg.Checklist.Items, 10)
	assert.Equal(t, "QDC Member", cfg.DisplayName(domain.RoleCommitteeMember))
}

func TestDisplayNameFallsBackToRole(t *testing.T) {
	var cfg *Config
	assert.Equal(t, "Admin", cfg.DisplayName(domain.RoleAdmin))
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"duplicate mode": "workflow:\n  duplicate_titles: block\nregistry:\n  initial_version: \"1.0\"\n",
		"no version":     "workflow:\n  duplicate_titles: warn\n",
		"unknown role":   "workflow:\n  duplicate_titles: warn\nregistry:\n  initial_version: \"1.0\"\nroles:\n  Janitor: {}\n",
		"empty item":     "workflow:\n  duplicate_titles: off\nregistry:\n  initial_version: \"2\"\nchecklist:\n  items: [\"\"]\n",
		"broken yaml":    "workflow: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = Load(dir)
	assert.ErrorContains(t, err, "not found")

	doc := "workflow:\n  strict_payloads: true\n  duplicate_titles: off\nregistry:\n  initial_version: \"2.0\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "qualflow.yml"), []byte(doc), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.True(t, cfg.Workflow.StrictPayloads)
	assert.Equal(t, DuplicateTitlesOff, cfg.Workflow.DuplicateTitles)
}
