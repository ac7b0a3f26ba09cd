package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var siteSchema = filepath.Join("testdata", "site.yaml")

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return buf.String(), err
}

// tempDB returns a sqlite URL for a fresh database file.
func tempDB(t *testing.T) string {
	t.Helper()
	return "sqlite://" + filepath.Join(t.TempDir(), "site.db")
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "folio", cmd.Use)

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"validate", "migrate", "explain", "find", "get", "create", "update", "delete", "publish", "test"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	flags := cmd.PersistentFlags()

	for name, want := range map[string]string{
		"format":             "text",
		"schema":             "folio.cue",
		"db":                 "sqlite://folio.db",
		"verbose":            "false",
		"mongo-transactions": "true",
	} {
		f := flags.Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, want, f.DefValue, name)
	}
	assert.Equal(t, "s", flags.Lookup("schema").Shorthand)
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "validate", siteSchema, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}
