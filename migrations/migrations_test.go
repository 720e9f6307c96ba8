package migrations

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var createTable = regexp.MustCompile(`(?s)CREATE TABLE IF NOT EXISTS (\w+) \((.*?)\n\);`)

func tableDefinitions(t *testing.T) map[string]string {
	t.Helper()
	raw, err := FS.ReadFile("000001_init.up.sql")
	require.NoError(t, err)
	tables := map[string]string{}
	for _, m := range createTable.FindAllStringSubmatch(string(raw), -1) {
		tables[m[1]] = m[2]
	}
	return tables
}

func TestProposalTablesOutliveEntities(t *testing.T) {
	tables := tableDefinitions(t)
	for _, name := range []string{"approvals", "pending_changes"} {
		def, ok := tables[name]
		require.True(t, ok, name)
		assert.NotContains(t, def, "CASCADE", name)
	}
	assert.Contains(t, tables["entity_tags"], "ON DELETE CASCADE")
}

func TestDownMigrationDropsEveryTable(t *testing.T) {
	raw, err := FS.ReadFile("000001_init.down.sql")
	require.NoError(t, err)
	for name := range tableDefinitions(t) {
		assert.True(t, strings.Contains(string(raw), "DROP TABLE IF EXISTS "+name+";"), name)
	}
}
