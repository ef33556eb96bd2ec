package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dstoolkit/internal/collection"
	"github.com/roach88/dstoolkit/internal/schema"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DatasetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema <manifest> [collection]",
		Short: "Print published collection schemas",
		Long: `Print the schemas the decorator stack publishes for a manifest.

The published schema is what a client sees after every customization:
renamed fields, imported and computed fields, emulated operators and
disabled capabilities.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			return runSchema(opts, args[0], name, cmd)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func runSchema(opts *DatasetOptions, manifestPath, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	built, err := opts.open(cmd.Context(), manifestPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, "failed to build manifest", err)
	}
	defer built.Close()

	var collections []collection.Collection
	if name != "" {
		c, err := built.Datasource().GetCollection(name)
		if err != nil {
			return formatter.Fail(ExitFailure, "schema failed", err)
		}
		collections = []collection.Collection{c}
	} else {
		collections = built.Datasource().Collections()
	}

	if opts.Format == "json" {
		out := make(map[string]schema.CollectionSchema, len(collections))
		for _, c := range collections {
			out[c.Name()] = c.Schema()
		}
		return formatter.Success(out)
	}

	w := cmd.OutOrStdout()
	for i, c := range collections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		s := c.Schema()
		fmt.Fprintf(w, "%s%s\n", c.Name(), capabilities(s))
		for _, field := range s.FieldNames() {
			fmt.Fprintf(w, "  %s\n", describeField(field, s.Fields[field]))
		}
		if len(s.Segments) > 0 {
			fmt.Fprintf(w, "  segments: %s\n", strings.Join(s.Segments, ", "))
		}
	}
	return nil
}

func capabilities(s schema.CollectionSchema) string {
	var caps []string
	if s.Searchable {
		caps = append(caps, "searchable")
	}
	if s.Countable {
		caps = append(caps, "countable")
	}
	if len(caps) == 0 {
		return ""
	}
	return " (" + strings.Join(caps, ", ") + ")"
}

// describeField renders one schema line, e.g.
// "title: String pk sortable [equal,in]".
func describeField(name string, f schema.Field) string {
	switch f := f.(type) {
	case schema.Column:
		parts := []string{fmt.Sprintf("%s: %s", name, f.ColumnType)}
		if f.IsPrimaryKey {
			parts = append(parts, "pk")
		}
		if f.IsReadOnly {
			parts = append(parts, "read-only")
		}
		if f.IsSortable {
			parts = append(parts, "sortable")
		}
		ops := f.FilterOperators.Sorted()
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = string(op)
		}
		parts = append(parts, "["+strings.Join(names, ",")+"]")
		return strings.Join(parts, " ")
	case schema.ManyToOne:
		return fmt.Sprintf("%s: ManyToOne -> %s via %s", name, f.ForeignCollection, f.ForeignKey)
	case schema.OneToOne:
		return fmt.Sprintf("%s: OneToOne -> %s via %s", name, f.ForeignCollection, f.OriginKey)
	case schema.OneToMany:
		return fmt.Sprintf("%s: OneToMany -> %s via %s", name, f.ForeignCollection, f.OriginKey)
	case schema.ManyToMany:
		return fmt.Sprintf("%s: ManyToMany -> %s through %s", name, f.ForeignCollection, f.ThroughCollection)
	}
	return fmt.Sprintf("%s: %s", name, f.FieldType())
}
