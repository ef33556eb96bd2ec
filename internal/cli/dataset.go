package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/condtree"
	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/manifest"
	"github.com/roach88/dstoolkit/internal/stack"
)

// DatasetOptions selects where a manifest's records live.
type DatasetOptions struct {
	*RootOptions
	Backend string // overrides the configured backend
	DB      string // overrides the configured SQLite path
}

func (o *DatasetOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Backend, "backend", "", "base datasource (memory|sqlite), default from config")
	cmd.Flags().StringVar(&o.DB, "db", "", "SQLite database file, default from config")
}

// open builds the manifest at path into a decorated datasource.
func (o *DatasetOptions) open(ctx context.Context, path string) (*manifest.Built, error) {
	cfg := o.settings()
	backend := cfg.Backend
	if o.Backend != "" {
		backend = o.Backend
	}
	db := cfg.Database.Path
	if o.DB != "" {
		db = o.DB
	}

	m, err := manifest.LoadFile(path)
	if err != nil {
		return nil, err
	}
	slog.Debug("building manifest", "path", path, "backend", backend, "collections", len(m.Collections))
	return m.Build(ctx, manifest.Options{
		Backend: manifest.Backend(backend),
		Path:    db,
		Stack:   []stack.Option{stack.WithMaxRows(cfg.Emulation.MaxRows)},
	})
}

// QueryOptions holds the filter flags shared by list and aggregate.
type QueryOptions struct {
	DatasetOptions
	Filter         string // condition tree JSON
	Search         string
	SearchExtended bool
	Segment        string
	Timezone       string
}

func (o *QueryOptions) addFlags(cmd *cobra.Command) {
	o.DatasetOptions.addFlags(cmd)
	cmd.Flags().StringVar(&o.Filter, "filter", "", `condition tree as JSON, e.g. {"field":"title","operator":"equal","value":"Dune"}`)
	cmd.Flags().StringVar(&o.Search, "search", "", "full-text search")
	cmd.Flags().BoolVar(&o.SearchExtended, "search-extended", false, "also search related collections")
	cmd.Flags().StringVar(&o.Segment, "segment", "", "named segment")
	cmd.Flags().StringVar(&o.Timezone, "timezone", "", "caller timezone, default from config")
}

// query returns the CLI caller and the filter built from the flags.
func (o *QueryOptions) query() (*collection.Caller, filter.Filter, error) {
	tzName := o.settings().Timezone
	if o.Timezone != "" {
		tzName = o.Timezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, filter.Filter{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid timezone %q", tzName))
	}

	var tree condtree.Tree
	if o.Filter != "" {
		tree, err = condtree.Unmarshal([]byte(o.Filter))
		if err != nil {
			return nil, filter.Filter{}, err
		}
	}

	f := filter.Filter{ConditionTree: tree, Timezone: loc}
	if o.Search != "" {
		f = f.WithSearch(o.Search, o.SearchExtended)
	}
	if o.Segment != "" {
		f = f.WithSegment(o.Segment)
	}
	return &collection.Caller{Email: "cli@dstoolkit", Timezone: loc}, f, nil
}

// parseSort reads "a,-b" as a ascending then b descending.
func parseSort(s string) filter.Sort {
	var clauses filter.Sort
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if field, ok := strings.CutPrefix(part, "-"); ok {
			clauses = append(clauses, filter.Clause{Field: field, Ascending: false})
			continue
		}
		clauses = append(clauses, filter.Clause{Field: strings.TrimPrefix(part, "+"), Ascending: true})
	}
	return clauses
}

// splitList reads a comma separated flag value.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
