package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func TestNew_Dedups(t *testing.T) {
	assert.Equal(t, Projection{"id", "title"}, New("id", "title", "id"))
}

func TestColumnsAndRelations(t *testing.T) {
	p := New("id", "author:name", "author:card:number", "title")

	assert.Equal(t, []string{"id", "title"}, p.Columns())
	assert.Equal(t, []string{"author"}, p.RelationNames())
	assert.Equal(t, Projection{"name", "card:number"}, p.Relations()["author"])
}

func TestEquals_IgnoresOrder(t *testing.T) {
	assert.True(t, New("a", "b").Equals(New("b", "a")))
	assert.False(t, New("a").Equals(New("a", "b")))
}

func TestReplace_Flattens(t *testing.T) {
	p := New("full_name", "id").Replace(func(path string) []string {
		if path == "full_name" {
			return []string{"first_name", "last_name", "id"}
		}
		return []string{path}
	})
	assert.Equal(t, Projection{"first_name", "last_name", "id"}, p)
}

func TestNestUnnest_Bijection(t *testing.T) {
	p := New("id", "name", "card:number")
	back, err := p.Nest("author").Unnest()
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestUnnest_RequiresCommonPrefix(t *testing.T) {
	_, err := New("author:name", "title").Unnest()
	assert.True(t, errs.IsConfigurationError(err))
}

func TestWithPks(t *testing.T) {
	lib := schematest.Library()
	p, err := New("title", "author:name").WithPks(lib.Source("Book"))
	require.NoError(t, err)
	assert.Equal(t, Projection{"title", "author:name", "id", "author:id"}, p)
}

func TestApply(t *testing.T) {
	records := []map[string]any{
		{"id": 1, "title": "T", "author": map[string]any{"id": 2, "name": "A"}},
		{"id": 2, "title": "U", "author": nil},
	}
	got := New("title", "author:name").Apply(records)
	assert.Equal(t, []map[string]any{
		{"title": "T", "author": map[string]any{"name": "A"}},
		{"title": "U", "author": nil},
	}, got)
}

func TestAll(t *testing.T) {
	lib := schematest.Library()
	p, err := All(lib.Source("Book"))
	require.NoError(t, err)
	assert.True(t, p.Equals(New("author_id", "id", "published_at", "title", "author:birth_date", "author:id", "author:name")))
}
