package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dstoolkit/internal/aggregation"
	"github.com/roach88/dstoolkit/internal/ir"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	QueryOptions
	Groups []string
	Limit  int
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{QueryOptions: QueryOptions{DatasetOptions: DatasetOptions{RootOptions: rootOpts}}}

	cmd := &cobra.Command{
		Use:   "aggregate <manifest> <collection> <operation> [field]",
		Short: "Aggregate records of a collection",
		Long: `Compute Count, Sum, Avg, Max or Min over a published collection.

Groups are field names, optionally suffixed with a date bucket
(Year, Month, Week or Day).

Examples:
  dstoolkit aggregate library.yaml Novel Count
  dstoolkit aggregate library.yaml Novel Count --group author:name
  dstoolkit aggregate library.yaml Novel Count --group published_at:Year`,
		Args:          cobra.RangeArgs(3, 4),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			field := ""
			if len(args) == 4 {
				field = args[3]
			}
			return runAggregate(opts, args[0], args[1], args[2], field, cmd)
		},
	}

	opts.QueryOptions.addFlags(cmd)
	cmd.Flags().StringSliceVar(&opts.Groups, "group", nil, "group field, repeatable (field or field:Bucket)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum groups, 0 for all")

	return cmd
}

func runAggregate(opts *AggregateOptions, manifestPath, name, operation, field string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	a, err := parseAggregation(operation, field, opts.Groups)
	if err != nil {
		return err
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
		return formatter.Fail(ExitFailure, "aggregate failed", err)
	}
	rows, err := c.Aggregate(ctx, caller, f, a, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitFailure, "aggregate failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"collection": name, "results": rows})
	}
	w := cmd.OutOrStdout()
	for _, row := range rows {
		value, err := ir.MarshalCanonical(row.Value)
		if err != nil {
			return err
		}
		if len(row.Group) == 0 {
			fmt.Fprintln(w, string(value))
			continue
		}
		group, err := ir.MarshalCanonical(row.Group)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", group, value)
	}
	return nil
}

// parseAggregation checks the operation and reads "field:Bucket" groups.
func parseAggregation(operation, field string, groups []string) (aggregation.Aggregation, error) {
	op := aggregation.Operation(operation)
	switch op {
	case aggregation.Count:
	case aggregation.Sum, aggregation.Avg, aggregation.Max, aggregation.Min:
		if field == "" {
			return aggregation.Aggregation{}, NewExitError(ExitCommandError, fmt.Sprintf("%s requires a field", op))
		}
	default:
		return aggregation.Aggregation{}, NewExitError(ExitCommandError,
			fmt.Sprintf("unknown operation %q: must be one of Count, Sum, Avg, Max, Min", operation))
	}

	a := aggregation.Aggregation{Field: field, Operation: op}
	for _, g := range groups {
		group := aggregation.Group{Field: g}
		// Relation paths use ':' too, so only a known bucket suffix counts.
		if idx := strings.LastIndex(g, ":"); idx >= 0 {
			switch bucket := aggregation.DateOperation(g[idx+1:]); bucket {
			case aggregation.Year, aggregation.Month, aggregation.Week, aggregation.Day:
				group = aggregation.Group{Field: g[:idx], Operation: bucket}
			}
		}
		a.Groups = append(a.Groups, group)
	}
	return a, nil
}
