package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
)

func runAggregateCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewAggregateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAggregate_Count(t *testing.T) {
	out, err := runAggregateCommand(t, "text", "testdata/library.yaml", "Novel", "Count")
	require.NoError(t, err)
	assert.Equal(t, "3\n", out)
}

func TestAggregate_CountWithFilter(t *testing.T) {
	out, err := runAggregateCommand(t, "text", "testdata/library.yaml", "Novel", "Count",
		"--filter", `{"field":"author_id","operator":"equal","value":1}`)
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestAggregate_GroupedByRelation(t *testing.T) {
	out, err := runAggregateCommand(t, "text", "testdata/library.yaml", "Novel", "Count", "--group", "author:name")
	require.NoError(t, err)
	assert.Contains(t, out, `{"author:name":"Ursula"}`+"\t2\n")
	assert.Contains(t, out, `{"author:name":"Frank"}`+"\t1\n")
}

func TestAggregate_UnknownOperation(t *testing.T) {
	_, err := runAggregateCommand(t, "text", "testdata/library.yaml", "Novel", "Median", "id")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown operation "Median"`)
}

func TestParseAggregation(t *testing.T) {
	a, err := parseAggregation("Count", "", []string{"published_at:Year", "author:name", "kind"})
	require.NoError(t, err)
	assert.Equal(t, aggregation.Aggregation{
		Operation: aggregation.Count,
		Groups: []aggregation.Group{
			{Field: "published_at", Operation: aggregation.Year},
			{Field: "author:name"},
			{Field: "kind"},
		},
	}, a)

	_, err = parseAggregation("Sum", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Sum requires a field")

	a, err = parseAggregation("Max", "published_at", nil)
	require.NoError(t, err)
	assert.Equal(t, aggregation.Max, a.Operation)
	assert.Equal(t, "published_at", a.Field)
}
