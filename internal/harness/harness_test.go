package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	return result
}

func TestRun_Reads(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/novel_reads.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)
	assert.Equal(t, 1, result.Trace[0].Seq)
	assert.Equal(t, "VALIDATION", result.Trace[1].Error)
	assert.Nil(t, result.Trace[1].Records)
}

func TestRun_WritesMemory(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/novel_writes.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 5)
	for _, ev := range result.Trace {
		assert.Empty(t, ev.Error, "step %d", ev.Seq)
	}
}

func TestRun_WritesSQLite(t *testing.T) {
	result := runScenario(t, "testdata/scenarios/novel_writes_sqlite.yaml")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ReportsMismatches(t *testing.T) {
	path := writeScenario(t, `
name: mismatch
description: "expectations that do not hold"
manifest: library.yaml
steps:
  - op: list
    collection: Novel
    filter: {field: name, operator: equal, value: Dune}
    projection: [name]
    expect:
      records: [{name: Earthsea}]
  - op: create
    collection: Novel
    records: [{name: X}]
assertions:
  - type: record_count
    collection: Novel
    count: 10
`)
	result := runScenario(t, path)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], `steps[0] list Novel: records: expected [{"name":"Earthsea"}], got [{"name":"Dune"}]`)
	assert.Contains(t, result.Errors[1], "steps[1] create Novel: unexpected error")
	assert.Contains(t, result.Errors[2], "Expected: 10 Novel records")
	assert.Contains(t, result.Errors[2], "Actual: 3 records")
}

func TestRun_UnknownCollection(t *testing.T) {
	path := writeScenario(t, `
name: missing
description: "steps on a removed collection"
manifest: library.yaml
steps:
  - op: list
    collection: Tag
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0")
}
