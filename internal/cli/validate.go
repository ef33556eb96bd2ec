package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dstoolkit/internal/manifest"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Collections []string `json:"collections,omitempty"`
	Errors      []string `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest",
		Long: `Validate a manifest (CUE, YAML or JSON) against the manifest schema,
then build it in memory so every customization is checked too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if _, err := manifest.FormatOf(path); err != nil {
		return formatter.Fail(ExitCommandError, "unsupported manifest", err)
	}

	m, err := manifest.LoadFile(path)
	if err != nil {
		var ve *manifest.ValidationError
		if errors.As(err, &ve) {
			return outputValidationErrors(formatter, ve.Problems)
		}
		return outputValidationErrors(formatter, []string{err.Error()})
	}
	formatter.VerboseLog("Loaded %d collection(s) from %s", len(m.Collections), path)

	built, err := m.Build(cmd.Context(), manifest.Options{Backend: manifest.BackendMemory})
	if err != nil {
		return outputValidationErrors(formatter, []string{err.Error()})
	}
	defer built.Close()

	published := built.Customizer.CollectionNames()
	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Collections: published})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Manifest valid: %d collection(s) published\n", len(published))
	for _, name := range published {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
	return nil
}

// outputValidationErrors reports every problem and fails with ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, problems []string) error {
	if formatter.Format == "json" {
		if err := formatter.Error("E_MANIFEST", fmt.Sprintf("%d problem(s) found", len(problems)),
			ValidationResult{Valid: false, Errors: problems}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Manifest invalid: %d problem(s)\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(formatter.Writer, "  %s\n", p)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d manifest problem(s)", len(problems)))
}
