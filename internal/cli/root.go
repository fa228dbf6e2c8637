// Package cli implements the cobra-based CLI commands for sirflow.
//
// Each subcommand (run, bootstrap, plan, images, clean) is defined in its
// own file within this package. This file defines the root command that
// serves as the parent for all subcommands and handles global flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	// When true, results go to stdout as JSON and log lines to stderr as
	// JSON objects.
	jsonOutput bool

	// verbose enables debug-level logging on stderr.
	verbose bool

	// configFile is an explicit config file path (--config). When empty,
	// sirflow.{yaml,yml,json,jsonc} is looked up in the working directory.
	configFile string
)

// logger is the process-wide structured logger. It writes to stderr so
// stdout stays reserved for command results and the child processes'
// own output.
var logger = newLogger(os.Stderr)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
// This is the entry point for the entire CLI application.
//
// The root command itself does not perform any action; it only provides
// help text and global flags. Actual functionality is provided by
// subcommands (run, bootstrap, plan, images, clean).
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		// Use is the one-line usage pattern shown in help output.
		Use:   "sirflow",
		Short: "Run the SIR epidemic model in a reproducible conda environment",
		Long: `sirflow bootstraps an isolated conda environment, installs the model
package into it, and runs the SIR model for one region and date range.

Steps run strictly in order and the first failure stops the run. The failing
step's exit code becomes sirflow's exit code, and after the model step a
one-line status file (SIR_RUN_EXIT_CODE=<n>) records the outcome.

With --container the same steps run inside a Docker image built for the run.`,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		// Version is displayed when --version flag is used.
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// PersistentPreRun runs before every subcommand, after flags are
		// parsed, so the logger reflects --verbose and --json.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureLogger(logger, verbose, jsonOutput)
		},
	}

	// PersistentFlags are inherited by all subcommands. This is the cobra
	// mechanism for global flags: any flag defined here is automatically
	// available in every subcommand without re-declaration.
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (default: ./sirflow.{yaml,yml,json,jsonc} if present)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	// Register subcommands. Each subcommand is defined in its own file
	// (run.go, images.go, etc.) and returns a *cobra.Command.
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewBootstrapCommand())
	rootCmd.AddCommand(NewPlanCommand())
	rootCmd.AddCommand(NewImagesCommand())
	rootCmd.AddCommand(NewCleanCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
// This is the main entry point called from main.go.
//
// It inspects errors returned by cobra commands and translates them
// into OS exit codes. CLIError types carry their own exit codes, which
// for a failed workflow step is that step's exit code, unchanged; other
// errors default to exit code 1.
func Execute(rootCmd *cobra.Command) {
	os.Exit(run(rootCmd))
}

// run executes rootCmd and returns the process exit code. It is split
// from Execute so tests can observe the code without exiting.
func run(rootCmd *cobra.Command) int {
	// Interrupts cancel the context; the running step is killed and no
	// further step is started.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		printError(os.Stderr, cliErr.Message, cliErr.Err)
		return exitCodeFor(cliErr)
	}

	// Generic error (flag parsing, unknown command): exit with code 1.
	printError(os.Stderr, err.Error(), nil)
	return int(model.ExitGeneralError)
}

// exitCodeFor returns the process exit code for cliErr. Codes outside
// the range a process can report fall back to ExitGeneralError so that a
// failure is never reported as success.
func exitCodeFor(cliErr *model.CLIError) int {
	code := int(cliErr.Code)
	if code <= 0 || code > 255 {
		return int(model.ExitGeneralError)
	}
	return code
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		// JSON error format: {"error": {"message": ..., "detail": ...}}.
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode, because stdout is
		// reserved for successful command output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	// Text format: "Error: <message>" on stderr.
	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger creates the sirflow logger writing to w at info level.
func newLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Prefix:          "sirflow",
		ReportTimestamp: true,
		Level:           log.InfoLevel,
	})
}

// configureLogger applies the --verbose and --json flags to l.
func configureLogger(l *log.Logger, verbose, asJSON bool) {
	if verbose {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	if asJSON {
		l.SetFormatter(log.JSONFormatter)
	} else {
		l.SetFormatter(log.TextFormatter)
	}
}

// VerboseLog prints a debug message to stderr only when verbose mode is
// enabled. This is used throughout the CLI for trace output that helps
// users understand what operations are being performed.
func VerboseLog(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	// MarshalIndent produces human-readable JSON with 2-space indentation.
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
