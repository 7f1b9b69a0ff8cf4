package interactive

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/SQLBM/internal/backup"
	"github.com/kadirbelkuyu/SQLBM/internal/database"
)

var databases = []database.DatabaseInfo{{Name: "SalesDB"}, {Name: "Orders"}, {Name: "HR"}, {Name: "Audit"}}

func prompter(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(strings.NewReader(input), &out), &out
}

func TestSelectDatabases(t *testing.T) {
	p, _ := prompter("3,1\n")
	names, err := p.SelectDatabases(databases)
	require.NoError(t, err)
	assert.Equal(t, []string{"SalesDB", "HR"}, names)

	p, _ = prompter("all\n")
	names, err = p.SelectDatabases(databases)
	require.NoError(t, err)
	assert.Len(t, names, 4)

	p, _ = prompter("2-3\n")
	names, err = p.SelectDatabases(databases)
	require.NoError(t, err)
	assert.Equal(t, []string{"Orders", "HR"}, names)
}

func TestSelectDatabasesRetriesInvalidInput(t *testing.T) {
	p, out := prompter("\nnine\n7\n4\n")
	names, err := p.SelectDatabases(databases)
	require.NoError(t, err)
	assert.Equal(t, []string{"Audit"}, names)
	assert.Contains(t, out.String(), "please enter valid numbers")
	assert.Contains(t, out.String(), "between 1 and 4")
}

func TestSelectDatabasesEOF(t *testing.T) {
	p, _ := prompter("")
	_, err := p.SelectDatabases(databases)
	assert.ErrorIs(t, err, io.EOF)

	_, err = p.SelectDatabases(nil)
	assert.Error(t, err)
}

func TestBackupAndRestoreOptions(t *testing.T) {
	p, _ := prompter("\ny\nn\nyes\n")
	opts, err := p.BackupOptions()
	require.NoError(t, err)
	assert.Equal(t, backup.BackupOptions{Compress: true, Differential: true, VerifyChecksum: true}, opts)

	p, _ = prompter("n\n\n\n")
	ropts, err := p.RestoreOptions()
	require.NoError(t, err)
	assert.Equal(t, backup.RestoreOptions{OverwriteExisting: true, BringOnline: true}, ropts)
}

func TestConfirmActionDefaultsToNo(t *testing.T) {
	p, _ := prompter("\n")
	assert.False(t, p.ConfirmAction("Restore", "SalesDB"))

	p, _ = prompter("y\n")
	assert.True(t, p.ConfirmAction("Restore", "SalesDB"))
}

func TestWithDefaultAndRequired(t *testing.T) {
	p, _ := prompter("\n\nSRV1\n")
	value, err := p.WithDefault("User", "sa")
	require.NoError(t, err)
	assert.Equal(t, "sa", value)

	value, err = p.Required("Server")
	require.NoError(t, err)
	assert.Equal(t, "SRV1", value)
}
