package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/novel_reads.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMarshalTrace_IsCanonical(t *testing.T) {
	result := NewResult()
	result.AddTrace(TraceEvent{Op: OpDelete, Collection: "Book", Args: map[string]any{"filter": nil}})
	result.AddTrace(TraceEvent{Op: OpCreate, Collection: "Book", Error: "VALIDATION"})

	data, err := MarshalTrace("two", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"two","trace":[{"args":{"filter":null},"collection":"Book","op":"delete","seq":1},{"collection":"Book","error":"VALIDATION","op":"create","seq":2}]}`,
		string(data))
}
