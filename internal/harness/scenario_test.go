package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
)

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	manifest, err := os.ReadFile("testdata/manifests/library.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "library.yaml"), manifest, 0o644))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/novel_writes.yaml")
	require.NoError(t, err)

	assert.Equal(t, "novel_writes", s.Name)
	assert.Equal(t, filepath.Join("testdata", "manifests", "library.yaml"), s.Manifest)
	assert.Equal(t, "2024-06-15T12:00:00Z", s.Now)
	require.Len(t, s.Steps, 5)
	assert.Equal(t, OpCreate, s.Steps[0].Op)
	assert.Equal(t, "recent", s.Steps[1].Segment)
	require.Len(t, s.Steps[1].Sort, 1)
	assert.True(t, s.Steps[1].Sort[0].Ascending)
	require.NotNil(t, s.Steps[4].Page)
	assert.Equal(t, 2, s.Steps[4].Page.Limit)
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, AssertSchemaField, s.Assertions[3].Type)
}

func TestLoadScenario_Aggregation(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/novel_reads.yaml")
	require.NoError(t, err)

	require.NotNil(t, s.Steps[2].Aggregation)
	assert.Equal(t, aggregation.Count, s.Steps[2].Aggregation.Operation)
	require.NotNil(t, s.Steps[1].Expect)
	assert.Equal(t, "VALIDATION", s.Steps[1].Expect.Error)
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "misspelled key"
manifest: library.yaml
assertion: []
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\nmanifest: library.yaml\nsteps: [{op: list, collection: Book}]\n",
			want: "name is required",
		},
		{
			name: "missing manifest file",
			body: "name: n\ndescription: d\nmanifest: nowhere.yaml\nsteps: [{op: list, collection: Book}]\n",
			want: "manifest file not found",
		},
		{
			name: "unknown backend",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nbackend: postgres\nsteps: [{op: list, collection: Book}]\n",
			want: `unknown backend "postgres"`,
		},
		{
			name: "bad now",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nnow: yesterday\nsteps: [{op: list, collection: Book}]\n",
			want: "now must be RFC 3339",
		},
		{
			name: "nothing to do",
			body: "name: n\ndescription: d\nmanifest: library.yaml\n",
			want: "steps or assertions are required",
		},
		{
			name: "unknown op",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nsteps: [{op: upsert, collection: Book}]\n",
			want: `steps[0]: unknown op "upsert"`,
		},
		{
			name: "create without records",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nsteps: [{op: create, collection: Book}]\n",
			want: "records are required for create",
		},
		{
			name: "aggregate without aggregation",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nsteps: [{op: aggregate, collection: Book}]\n",
			want: "aggregation is required for aggregate",
		},
		{
			name: "schema field without field",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nassertions: [{type: schema_field, collection: Book, expect: {type: Column}}]\n",
			want: "field is required for schema_field",
		},
		{
			name: "unknown assertion",
			body: "name: n\ndescription: d\nmanifest: library.yaml\nassertions: [{type: trace_order, collection: Book}]\n",
			want: `unknown assertion type "trace_order"`,
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
