package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func explainJSON(t *testing.T, args ...string) Explanation {
	t.Helper()
	out, err := execute(t, append([]string{"explain", "--format", "json", "--schema", siteSchema}, args...)...)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   Explanation `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestExplain_SQLite(t *testing.T) {
	out, err := execute(t, "explain", "users", "--schema", siteSchema, "--db", "sqlite://unused.db",
		"--where", `{"name": {"equals": "Ann"}}`, "--sort", "name")
	require.NoError(t, err)

	assert.Contains(t, out, `FROM "users" t0`)
	assert.Contains(t, out, `t0."name" = ?`)
	assert.Contains(t, out, "-- args: [Ann")
	assert.NoFileExists(t, "unused.db")
}

func TestExplain_Postgres(t *testing.T) {
	ex := explainJSON(t, "users", "--db", "postgres://localhost/site", "--where", `{"name": {"equals": "Ann"}}`)

	assert.Equal(t, "sql/postgres", ex.Backend)
	assert.Contains(t, ex.SQL, `t0."name" = $1`)
	assert.NotContains(t, ex.SQL, "?")
	assert.Contains(t, ex.Args, "Ann")
	assert.Empty(t, ex.Filter)
}

func TestExplain_Document(t *testing.T) {
	ex := explainJSON(t, "users", "--db", "mongodb://localhost/site", "--where", "name: {equals: Ann}", "--sort", "-name")

	assert.Equal(t, "doc/mongodb", ex.Backend)
	assert.Empty(t, ex.SQL)
	assert.JSONEq(t, `{"name": {"$eq": "Ann"}}`, string(ex.Filter))

	var sort map[string]int
	require.NoError(t, json.Unmarshal(ex.Sort, &sort))
	assert.Equal(t, map[string]int{"name": -1, "_id": 1}, sort)
}

func TestExplain_DocumentRelationship(t *testing.T) {
	ex := explainJSON(t, "posts", "--db", "memory://", "--where", `{"author.name": {"equals": "Ann"}}`)

	assert.Contains(t, string(ex.Filter), "ids of users matching")
}

func TestExplain_DocumentLocalized(t *testing.T) {
	ex := explainJSON(t, "posts", "--db", "memory://", "--where", `{"title": {"equals": "Bonjour"}}`, "--locale", "fr")

	assert.Contains(t, string(ex.Filter), "title.fr")
}

func TestExplain_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
		msg  string
	}{
		{"unknown collection", []string{"nope"}, ExitFailure, "UNKNOWN_COLLECTION"},
		{"unknown field", []string{"users", "--where", `{"nope": {"equals": 1}}`}, ExitFailure, "UNKNOWN_FIELD"},
		{"invalid operator", []string{"users", "--where", `{"name": {"near": [0, 0, 10]}}`}, ExitFailure, "INVALID_OPERATOR"},
		{"malformed where", []string{"users", "--where", `{"name": [`}, ExitCommandError, "invalid --where"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"explain", "--schema", siteSchema, "--db", "memory://"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.code, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
