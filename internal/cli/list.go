package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dstoolkit/internal/filter"
	"github.com/roach88/dstoolkit/internal/ir"
	"github.com/roach88/dstoolkit/internal/projection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	QueryOptions
	Sort   string
	Fields string
	Skip   int
	Limit  int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{QueryOptions: QueryOptions{DatasetOptions: DatasetOptions{RootOptions: rootOpts}}}

	cmd := &cobra.Command{
		Use:   "list <manifest> <collection>",
		Short: "List records of a collection",
		Long: `List records of a published collection through the decorator stack.

Text output prints one canonical JSON record per line.

Examples:
  dstoolkit list library.yaml Novel --fields name,author:name
  dstoolkit list library.yaml Novel --filter '{"field":"name","operator":"starts_with","value":"D"}'
  dstoolkit list library.yaml Novel --sort -published_at --limit 10 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, args[0], args[1], cmd)
		},
	}

	opts.QueryOptions.addFlags(cmd)
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "sort clauses, e.g. name,-published_at")
	cmd.Flags().StringVar(&opts.Fields, "fields", "", "projection, default every column")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "records to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum records, 0 for all")

	return cmd
}

func runList(opts *ListOptions, manifestPath, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Skip < 0 || opts.Limit < 0 {
		return NewExitError(ExitCommandError, "--skip and --limit must be non-negative")
	}

	caller, f, err := opts.query()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	built, err := opts.open(ctx, manifestPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to build manifest", err)
	}
	defer built.Close()

	c, err := built.Datasource().GetCollection(name)
	if err != nil {
		return formatter.Fail(ExitFailure, "list failed", err)
	}

	pf := f.Paginated()
	if opts.Sort != "" {
		pf = pf.WithSort(parseSort(opts.Sort))
	}
	if opts.Skip > 0 || opts.Limit > 0 {
		pf = pf.WithPage(&filter.Page{Skip: opts.Skip, Limit: opts.Limit})
	}
	p := projection.New(splitList(opts.Fields)...)
	if len(p) == 0 {
		p = columns(c.Schema())
	}
	formatter.VerboseLog("Listing %s with projection %v", name, p)

	records, err := c.List(ctx, caller, pf, p)
	if err != nil {
		return formatter.Fail(ExitFailure, "list failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"collection": name, "records": records})
	}
	w := cmd.OutOrStdout()
	for _, r := range records {
		line, err := ir.MarshalCanonical(r)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(line))
	}
	return nil
}

// columns projects every column of s.
func columns(s schema.CollectionSchema) projection.Projection {
	var names []string
	for _, name := range s.FieldNames() {
		if s.Fields[name].FieldType() == schema.FieldColumn {
			names = append(names, name)
		}
	}
	return projection.New(names...)
}
