package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/optisync/internal/harness"
)

// FileError is a scenario file that failed to load.
type FileError struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool        `json:"valid"`
	Files  int         `json:"files"`
	Errors []FileError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenarios without running them",
		Long: `Parse and validate YAML scenarios without running them.

Unknown fields, unknown step ops, releases of holds that were never opened
and malformed assertions are all reported.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	files, err := findScenarioFiles(paths, "")
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	if len(files) == 0 {
		return NewExitError(ExitCommandError, "no scenario files found")
	}

	result := ValidationResult{Files: len(files)}
	for _, file := range files {
		formatter.VerboseLog("validating %s", file)
		if _, err := harness.LoadScenario(file); err != nil {
			result.Errors = append(result.Errors, FileError{File: file, Message: err.Error()})
		}
	}
	result.Valid = len(result.Errors) == 0

	if result.Valid {
		if formatter.IsJSON() {
			return formatter.Success(result)
		}
		return formatter.Success(fmt.Sprintf("✓ %d scenario(s) valid", result.Files))
	}

	if formatter.IsJSON() {
		if err := formatter.Respond(result, &CLIError{
			Code:    ErrCodeInvalidScenario,
			Message: fmt.Sprintf("%d of %d scenario(s) invalid", len(result.Errors), result.Files),
		}); err != nil {
			return err
		}
	} else {
		for _, fe := range result.Errors {
			fmt.Fprintf(formatter.Writer, "✗ %s\n  %s\n", fe.File, fe.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) invalid", len(result.Errors)))
}
