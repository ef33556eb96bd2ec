package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/memory"
	"github.com/roach88/dstoolkit/internal/schema/schematest"
)

// Library returns an in-memory datasource over the schematest catalog,
// seeded with two people, four books and one card.
//
//	Person 1 Ursula, 2 Frank
//	Book   1 Dune (Frank), 2 Earthsea (Ursula), 3 The Dispossessed (Ursula), 4 Anonymous (no author)
//	Card   1 A-1 (Ursula)
func Library(t testing.TB) *memory.Datasource {
	t.Helper()
	ds, err := memory.FromSchemas(schematest.Library())
	require.NoError(t, err)

	seed := func(name string, rows ...collection.Record) {
		c, err := ds.Collection(name)
		require.NoError(t, err)
		c.Seed(rows...)
	}
	seed("Person",
		collection.Record{"id": 1, "name": "Ursula", "birth_date": "1929-10-21"},
		collection.Record{"id": 2, "name": "Frank", "birth_date": "1920-10-08"},
	)
	seed("Book",
		collection.Record{"id": 1, "title": "Dune", "author_id": 2, "published_at": "1965-08-01T00:00:00Z"},
		collection.Record{"id": 2, "title": "Earthsea", "author_id": 1, "published_at": "1968-11-01T00:00:00Z"},
		collection.Record{"id": 3, "title": "The Dispossessed", "author_id": 1, "published_at": "1974-05-01T00:00:00Z"},
		collection.Record{"id": 4, "title": "Anonymous", "author_id": nil},
	)
	seed("Card", collection.Record{"id": 1, "number": "A-1", "owner_id": 1})
	return ds
}

// Titles collects the title of every record, in order.
func Titles(records []collection.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["title"]
	}
	return out
}
