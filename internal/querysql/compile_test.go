package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/errs"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func newCompiler() *SQLCompiler {
	return NewSQLCompiler(Catalog(schematest.Library()))
}

func TestCompile_SimpleSelect(t *testing.T) {
	q, err := newCompiler().Select("Book", []string{"id", "title"}, condtree.NewLeaf("title", schema.OpEqual, "Dune"), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `SELECT t0."id", t0."title" FROM "Book" AS t0 WHERE t0."title" = ? ORDER BY t0."id" ASC`, q.SQL)
	// Values are never interpolated.
	assert.NotContains(t, q.SQL, "Dune")
	assert.Equal(t, []any{"Dune"}, q.Params)
}

func TestCompile_RelationPathsBecomeSubqueries(t *testing.T) {
	tree := condtree.NewLeaf("author:name", schema.OpEqual, "Ursula")
	sort := filter.NewSort(filter.Clause{Field: "author:name", Ascending: false})

	q, err := newCompiler().Select("Book", []string{"id"}, tree, sort, &filter.Page{Skip: 1, Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, `SELECT t0."id" FROM "Book" AS t0`+
		` WHERE (SELECT t1."name" FROM "Person" AS t1 WHERE t1."id" = t0."author_id") = ?`+
		` ORDER BY (SELECT t2."name" FROM "Person" AS t2 WHERE t2."id" = t0."author_id") DESC, t0."id" ASC`+
		` LIMIT ? OFFSET ?`, q.SQL)
	assert.Equal(t, []any{"Ursula", 2, 1}, q.Params)
}

func TestCompile_OneToOnePath(t *testing.T) {
	q, err := newCompiler().Select("Person", []string{"id"}, condtree.NewLeaf("card:number", schema.OpPresent, nil), nil, nil)
	require.NoError(t, err)

	sub := `(SELECT t1."number" FROM "Card" AS t1 WHERE t1."owner_id" = t0."id")`
	assert.Equal(t, `SELECT t0."id" FROM "Person" AS t0 WHERE (`+sub+` IS NOT NULL AND `+sub+` != '') ORDER BY t0."id" ASC`, q.SQL)
	assert.Empty(t, q.Params)
}

func TestCompile_NullAwareOperators(t *testing.T) {
	tree := condtree.Branch{Aggregator: condtree.And, Conditions: []condtree.Tree{
		condtree.NewLeaf("author_id", schema.OpIn, []any{1, nil}),
		condtree.NewLeaf("title", schema.OpNotIn, []any{}),
		condtree.NewLeaf("title", schema.OpContains, "50%_"),
		condtree.NewLeaf("title", schema.OpNotEqual, "Dune"),
	}}

	q, err := newCompiler().Select("Book", []string{"id"}, tree, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, `SELECT t0."id" FROM "Book" AS t0 WHERE (`+
		`(t0."author_id" IN (?) OR t0."author_id" IS NULL)`+
		` AND (t0."title" IS NULL OR 1 = 1)`+
		` AND t0."title" LIKE ? ESCAPE '\'`+
		` AND (t0."title" IS NULL OR t0."title" != ?)`+
		`) ORDER BY t0."id" ASC`, q.SQL)
	assert.Equal(t, []any{1, `%50\%\_%`, "Dune"}, q.Params)
}

func TestCompile_EmptyBranches(t *testing.T) {
	q, err := newCompiler().Select("Book", []string{"id"}, condtree.MatchNone(), nil, nil)
	require.NoError(t, err)
	assert.Contains(t, q.SQL, "WHERE 1 = 0")
}

func TestCompile_RejectsNonNativeOperators(t *testing.T) {
	_, err := newCompiler().Select("Book", []string{"id"}, condtree.NewLeaf("title", schema.OpLongerThan, 3), nil, nil)
	assert.True(t, errs.IsFilterError(err))

	_, err = newCompiler().Select("Book", []string{"author"}, nil, nil, nil)
	assert.True(t, errs.IsConfigurationError(err))

	_, err = newCompiler().Select("Nope", []string{"id"}, nil, nil, nil)
	assert.True(t, errs.IsNotFoundError(err))
}

func TestCompile_DatesAreNormalized(t *testing.T) {
	q, err := newCompiler().Select("Book", []string{"id"}, condtree.NewLeaf("published_at", schema.OpGreaterThan, "1965-08-01T02:00:00+02:00"), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"1965-08-01T00:00:00Z"}, q.Params)
}

func TestCompile_Aggregate(t *testing.T) {
	a := aggregation.Aggregation{Operation: aggregation.Count, Groups: []aggregation.Group{{Field: "author_id"}}}
	q, err := newCompiler().Aggregate("Book", a, nil, 5)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS value, t0."author_id" AS g0 FROM "Book" AS t0 GROUP BY g0 ORDER BY value ASC, g0 ASC LIMIT ?`, q.SQL)
	assert.Equal(t, []any{5}, q.Params)

	a = aggregation.Aggregation{Field: "id", Operation: aggregation.Avg}
	q, err = newCompiler().Aggregate("Book", a, condtree.NewLeaf("author_id", schema.OpEqual, 1), 0)
	require.NoError(t, err)
	assert.Equal(t, `SELECT AVG(t0."id") AS value FROM "Book" AS t0 WHERE t0."author_id" = ? HAVING value IS NOT NULL ORDER BY value ASC`, q.SQL)

	a = aggregation.Aggregation{Operation: aggregation.Count, Groups: []aggregation.Group{{Field: "published_at", Operation: aggregation.Month}}}
	_, err = newCompiler().Aggregate("Book", a, nil, 0)
	assert.Equal(t, errs.CodeUnprocessable, errs.CodeOf(err))
}

func TestCompile_Writes(t *testing.T) {
	c := newCompiler()

	q, err := c.Insert("Book", map[string]any{"title": "X", "published_at": "1965-08-01"})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "Book" ("published_at", "title") VALUES (?, ?)`, q.SQL)
	assert.Equal(t, []any{"1965-08-01T00:00:00Z", "X"}, q.Params)

	q, err = c.Update("Book", map[string]any{"title": "Y"}, condtree.NewLeaf("id", schema.OpEqual, 1))
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "Book" SET "title" = ? WHERE rowid IN (SELECT t0.rowid FROM "Book" AS t0 WHERE t0."id" = ?)`, q.SQL)
	assert.Equal(t, []any{"Y", 1}, q.Params)

	q, err = c.Delete("Book", nil)
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "Book"`, q.SQL)

	_, err = c.Insert("Book", map[string]any{"author": map[string]any{}})
	assert.True(t, errs.IsValidationError(err))
}

func TestFromColumn(t *testing.T) {
	tests := []struct {
		name string
		col  schema.Column
		in   any
		want any
	}{
		{"boolean", schema.Column{ColumnType: schema.TypeBoolean}, int64(1), true},
		{"integral float", schema.Column{ColumnType: schema.TypeNumber}, 3.0, int64(3)},
		{"real", schema.Column{ColumnType: schema.TypeNumber}, 2.5, 2.5},
		{"json", schema.Column{ColumnType: schema.TypeJSON}, []byte(`{"a":[1]}`), map[string]any{"a": []any{1.0}}},
		{"text bytes", schema.Column{ColumnType: schema.TypeString}, []byte("hi"), "hi"},
		{"binary bytes", schema.Column{ColumnType: schema.TypeBinary}, []byte("hi"), []byte("hi")},
		{"null", schema.Column{ColumnType: schema.TypeString}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromColumn(tt.col, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
