package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldstone/gdbgov/internal/govern"
)

// GovernOptions holds the flags shared by every governance mode.
type GovernOptions struct {
	*RootOptions
	Workspace string
	Map       string
	PolicyDir string
	OutDir    string
	Prefix    string
	DryRun    bool
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return newModeCommand(rootOpts, govern.ModeScan,
		"Audit identifiers without mutating",
		`Walk every dataset reachable from the map document, including
read-only service and join layers, and report each identifier
occurrence with its provenance. Nothing is written back.

Example:
  gdbgov scan --workspace ./water.gdb --map ./map.yaml --out ./reports`)
}

// NewDedupeCommand creates the dedupe command.
func NewDedupeCommand(rootOpts *RootOptions) *cobra.Command {
	return newModeCommand(rootOpts, govern.ModeDedupe,
		"Detect and regenerate duplicate identifiers",
		`Group identifier occurrences by canonical form across every
writable dataset. In each duplicate group one occurrence keeps its
value (a GlobalID occurrence if present, otherwise the first seen)
and the rest receive fresh identifiers, text fields before GUID
fields.

Example:
  gdbgov dedupe --workspace ./water.gdb --map ./map.yaml --dry-run`)
}

// NewAssignCommand creates the assign command.
func NewAssignCommand(rootOpts *RootOptions) *cobra.Command {
	return newModeCommand(rootOpts, govern.ModeAssign,
		"Fill missing identifiers on the governed field",
		`Resolve the policy's target alias on each writable dataset and
assign fresh identifiers to rows whose value is empty or a
placeholder sentinel. Generated identifiers never collide with any
identifier seen during the run.

Example:
  gdbgov assign --workspace ./water.gdb --map ./map.yaml --policy ./policy`)
}

// NewCalcCommand creates the calc command.
func NewCalcCommand(rootOpts *RootOptions) *cobra.Command {
	return newModeCommand(rootOpts, govern.ModeCalc,
		"Write the policy fill value over placeholders",
		`Resolve the policy's target alias on each writable dataset and
overwrite placeholder values with the policy's fillValue. The policy
must define a fillValue; the stock policy does not.

Example:
  gdbgov calc --workspace ./water.gdb --map ./map.yaml --policy ./policy`)
}

func newModeCommand(rootOpts *RootOptions, mode govern.Mode, short, long string) *cobra.Command {
	opts := &GovernOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           string(mode),
		Short:         short,
		Long:          long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGovern(opts, mode, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "path to the workspace (required)")
	_ = cmd.MarkFlagRequired("workspace")
	cmd.Flags().StringVar(&opts.Map, "map", "", "path to the map document (required)")
	_ = cmd.MarkFlagRequired("map")
	cmd.Flags().StringVar(&opts.PolicyDir, "policy", "", "policy directory (CUE); empty uses the stock policy")
	cmd.Flags().StringVar(&opts.OutDir, "out", ".", "directory receiving the reports")
	cmd.Flags().StringVar(&opts.Prefix, "prefix", "", "report file prefix (defaults to the mode name)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan every edit but write nothing")

	return cmd
}

func runGovern(opts *GovernOptions, mode govern.Mode, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Signal handling: a governance run is cooperative at dataset
	// granularity; an interrupt finishes the current dataset and
	// reports the rest as skipped.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, cancelling run", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	summary, err := govern.Run(ctx, govern.Config{
		Mode:          mode,
		WorkspacePath: opts.Workspace,
		MapPath:       opts.Map,
		PolicyDir:     opts.PolicyDir,
		OutDir:        opts.OutDir,
		Prefix:        opts.Prefix,
		DryRun:        opts.DryRun,
		Logger:        logger,
	})
	if err != nil {
		var re *govern.RunError
		if errors.As(err, &re) {
			_ = formatter.Error(string(re.Code), re.Error())
			return WrapExitError(exitCodeFor(re.Code), "run aborted", err)
		}
		return WrapExitError(ExitFailure, "run aborted", err)
	}

	return formatter.Success(summaryPayload(summary))
}

// exitCodeFor maps fatal run error codes onto process exit codes.
// Misconfiguration is a command error; a run that started and could
// not finish is a failure.
func exitCodeFor(code govern.RunErrorCode) int {
	switch code {
	case govern.ErrCodeReportFailure:
		return ExitFailure
	default:
		return ExitCommandError
	}
}

// modeSummary is the JSON payload for a completed run.
type modeSummary struct {
	Mode            string   `json:"mode"`
	Datasets        int      `json:"datasets"`
	ReadOnly        int      `json:"read_only,omitempty"`
	Occurrences     int      `json:"occurrences"`
	DuplicateGroups int      `json:"duplicate_groups,omitempty"`
	Updated         int      `json:"updated"`
	Skipped         int      `json:"skipped"`
	Errors          int      `json:"errors"`
	Reports         []string `json:"reports"`
}

func (s modeSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s complete: %d datasets, %d identifier occurrences\n",
		s.Mode, s.Datasets, s.Occurrences)
	if s.ReadOnly > 0 {
		fmt.Fprintf(&b, "  read-only targets: %d\n", s.ReadOnly)
	}
	if s.DuplicateGroups > 0 {
		fmt.Fprintf(&b, "  duplicate groups:  %d\n", s.DuplicateGroups)
	}
	fmt.Fprintf(&b, "  updated %d / skipped %d / errors %d\n", s.Updated, s.Skipped, s.Errors)
	for _, p := range s.Reports {
		fmt.Fprintf(&b, "  report: %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryPayload(s *govern.Summary) modeSummary {
	out := modeSummary{
		Mode:            string(s.Mode),
		Datasets:        s.Datasets,
		ReadOnly:        s.ReadOnly,
		Occurrences:     s.Occurrences,
		DuplicateGroups: s.DuplicateGroups,
		Updated:         s.Updated,
		Skipped:         s.Skipped,
		Errors:          s.Errors,
	}
	for _, p := range []string{
		s.Reports.Updated, s.Reports.Skipped, s.Reports.Errors, s.Reports.Log,
		s.OccurrencesCSV, s.CoverageCSV,
	} {
		if p != "" {
			out.Reports = append(out.Reports, p)
		}
	}
	return out
}
