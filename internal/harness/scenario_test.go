package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/folio/internal/adapter"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/users_crud.yaml")
	require.NoError(t, err)

	assert.Equal(t, "users_crud", s.Name)
	assert.Equal(t, filepath.Join("testdata", "schemas", "site.cue"), s.Schema)
	require.Len(t, s.Steps, 8)

	first := s.Steps[0]
	assert.Equal(t, adapter.OpCreate, first.Operation)
	assert.Equal(t, "users", first.Collection)
	assert.Equal(t, "ann@example.com", first.Data["email"])
	require.NotNil(t, first.Expect)
	assert.Equal(t, map[string]any{"id": "u1", "name": "Ann"}, first.Expect.Doc)

	assert.Equal(t, "VALIDATION_ERROR", s.Steps[2].Expect.Error)
	assert.Equal(t, "email", s.Steps[2].Expect.Field)
	assert.Nil(t, s.Steps[1].Expect)

	require.Len(t, s.Assertions, 3)
	assert.Equal(t, AssertCount, s.Assertions[0].Type)
	assert.Equal(t, 1, s.Assertions[0].Count)
}

func TestLoadScenario_Where(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/drafts_publish.yaml")
	require.NoError(t, err)

	var versions []Step
	for _, step := range s.Steps {
		if step.Operation == adapter.OpFindVersions {
			versions = append(versions, step)
		}
	}
	require.Len(t, versions, 2)
	assert.Equal(t, "createdAt", versions[0].Sort)
	assert.Contains(t, versions[1].Where, "and")
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
schema: schema.cue
step:
  - operation: find
    collection: users
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "schema: s.cue\nsteps: [{operation: find, collection: users}]\n",
			want: "name is required",
		},
		{
			name: "missing schema",
			body: "name: x\nsteps: [{operation: find, collection: users}]\n",
			want: "schema is required",
		},
		{
			name: "no steps",
			body: "name: x\nschema: s.cue\n",
			want: "steps list is required",
		},
		{
			name: "step without operation",
			body: "name: x\nschema: s.cue\nsteps: [{collection: users}]\n",
			want: "steps[0]: operation is required",
		},
		{
			name: "setup without collection",
			body: "name: x\nschema: s.cue\nsetup: [{operation: create}]\nsteps: [{operation: find, collection: users}]\n",
			want: "setup[0]: collection is required",
		},
		{
			name: "unknown assertion",
			body: "name: x\nschema: s.cue\nsteps: [{operation: find, collection: users}]\nassertions: [{type: trace, collection: users}]\n",
			want: `unknown assertion type "trace"`,
		},
		{
			name: "final_state without selector",
			body: "name: x\nschema: s.cue\nsteps: [{operation: find, collection: users}]\nassertions: [{type: final_state, collection: users, expect: {a: 1}}]\n",
			want: "final_state requires id, where or global",
		},
		{
			name: "not_found without id",
			body: "name: x\nschema: s.cue\nsteps: [{operation: find, collection: users}]\nassertions: [{type: not_found, collection: users}]\n",
			want: "not_found requires id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)

	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"drafts_publish", "locales_globals", "users_crud"}, names)

	_, err = LoadScenarios(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario files")
}
