package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

func mockBooks(t *testing.T) (*Collection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() {
		db.Close()
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("there were unfulfilled expectations: %s", err)
		}
	})
	s, err := New(db, schematest.Library())
	require.NoError(t, err)
	books, err := s.Collection("Book")
	require.NoError(t, err)
	return books, mock
}

func TestMock_ListSelectsKeysAndConverts(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectQuery(`SELECT t0."title", t0."id" FROM "Book" AS t0 WHERE t0."title" = ? ORDER BY t0."id" ASC`).
		WithArgs("Dune").
		WillReturnRows(sqlmock.NewRows([]string{"title", "id"}).AddRow([]byte("Dune"), int64(1)))

	got, err := books.List(context.Background(), nil, where(condtree.NewLeaf("title", schema.OpEqual, "Dune")), projection.New("title"))
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"title": "Dune"}}, got)
}

func TestMock_ListWrapsDriverErrors(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectQuery(`SELECT t0."id" FROM "Book" AS t0 ORDER BY t0."id" ASC`).
		WillReturnError(errors.New("disk I/O error"))

	_, err := books.List(context.Background(), nil, filter.PaginatedFilter{}, projection.New("id"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `list "Book"`)
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestMock_CreateRunsInTransaction(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "Book" ("author_id", "published_at", "title") VALUES (?, ?, ?)`).
		WithArgs(nil, nil, "Dune").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	created, err := books.Create(context.Background(), nil, []collection.Record{{"title": "Dune"}})
	require.NoError(t, err)
	assert.Equal(t, []collection.Record{{"id": int64(7), "title": "Dune", "author_id": nil, "published_at": nil}}, created)
}

func TestMock_CreateRollsBackOnFailure(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "Book" ("author_id", "id", "published_at", "title") VALUES (?, ?, ?, ?)`).
		WithArgs(nil, 1, nil, "Dune").
		WillReturnError(errors.New("UNIQUE constraint failed: Book.id"))
	mock.ExpectRollback()

	_, err := books.Create(context.Background(), nil, []collection.Record{{"id": 1, "title": "Dune"}})
	require.Error(t, err)
}

func TestMock_UpdateAndDelete(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectExec(`UPDATE "Book" SET "title" = ? WHERE rowid IN (SELECT t0.rowid FROM "Book" AS t0 WHERE t0."id" = ?)`).
		WithArgs("Dune Messiah", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "Book"`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	f := filter.Filter{ConditionTree: condtree.NewLeaf("id", schema.OpEqual, 1)}
	require.NoError(t, books.Update(context.Background(), nil, f, collection.Record{"title": "Dune Messiah"}))
	require.NoError(t, books.Delete(context.Background(), nil, filter.Filter{}))
}

func TestMock_AggregateGroups(t *testing.T) {
	books, mock := mockBooks(t)
	mock.ExpectQuery(`SELECT COUNT(*) AS value, t0."author_id" AS g0 FROM "Book" AS t0 GROUP BY g0 ORDER BY value ASC, g0 ASC LIMIT ?`).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"value", "g0"}).
			AddRow(int64(1), int64(2)).
			AddRow(int64(2), float64(1)))

	a := aggregation.Aggregation{Operation: aggregation.Count, Groups: []aggregation.Group{{Field: "author_id"}}}
	got, err := books.Aggregate(context.Background(), nil, filter.Filter{}, a, 10)
	require.NoError(t, err)
	assert.Equal(t, []aggregation.Result{
		{Value: 1, Group: map[string]any{"author_id": int64(2)}},
		{Value: 2, Group: map[string]any{"author_id": int64(1)}},
	}, got)
}
