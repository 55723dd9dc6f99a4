package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"conduit/internal/engine"
	"conduit/internal/logger"
)

const (
	runCmdUsage = "run [RESOURCE...]"
	runCmdShort = "run one or more resources defined in the ingest file"
	runCmdLong  = `Run one or more resources defined in the ingest file.

	Each resource reads from its source in batches, validates records against
	its quality checks, reconciles the destination schema and writes the
	surviving records. Records that fail are collected in an error log under
	the state directory, and every run is appended to the run manifest.

	A run that stops on an unexpected error leaves a checkpoint behind; pass
	--resume to continue from it.`

	runCmdExample = `# Run a single resource
	conduit run orders -c conduit.yaml

	# Run every resource without writing anything
	conduit run --all --dry-run

	# Continue an interrupted run with bigger batches
	conduit run orders --resume --batch-size 5000`
)

// runFlags holds the flags for the "run" command.
type runFlags struct {
	configFlags
	all       bool
	dryRun    bool
	resume    bool
	batchSize int
}

// addFlags adds the cli flags to the cobra command.
func (f *runFlags) addFlags(cmd *cobra.Command) {
	f.configFlags.addFlags(cmd)
	cmd.Flags().BoolVar(&f.all, allFlagName, false, allFlagUsage)
	cmd.Flags().BoolVar(&f.dryRun, dryRunFlagName, false, dryRunFlagUsage)
	cmd.Flags().BoolVar(&f.resume, resumeFlagName, false, resumeFlagUsage)
	cmd.Flags().IntVar(&f.batchSize, batchSizeFlagName, 0, batchSizeFlagUsage)
}

// toOptions builds a runOptions instance from the parsed flags and CLI arguments.
func (f *runFlags) toOptions(cmd *cobra.Command, args []string) *runOptions {
	return &runOptions{
		configPath: f.configPath,
		resources:  args,
		all:        f.all,
		run: engine.RunOptions{
			DryRun:    f.dryRun,
			Resume:    f.resume,
			BatchSize: f.batchSize,
		},
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	}
}

// RunCmd returns the Cobra command that runs resources.
func RunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:     runCmdUsage,
		Short:   heredoc.Doc(runCmdShort),
		Long:    heredoc.Doc(runCmdLong),
		Example: heredoc.Doc(runCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		RunE: func(cmd *cobra.Command, args []string) error {
			opts := flags.toOptions(cmd, args)
			if err := opts.validate(); err != nil {
				return handleError(cmd, err)
			}

			if err := opts.execute(cmd.Context()); err != nil {
				return handleError(cmd, err)
			}

			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// runOptions configures a "run" invocation.
type runOptions struct {
	configPath string
	resources  []string
	all        bool
	run        engine.RunOptions

	out    io.Writer
	errOut io.Writer
}

// validate checks the combination of arguments and flags.
func (o *runOptions) validate() error {
	switch {
	case !o.all && len(o.resources) == 0:
		return errNoArguments
	case o.all && len(o.resources) > 0:
		return fmt.Errorf("%w: --%s cannot be combined with resource names", errInvalidArgument, allFlagName)
	case o.run.BatchSize < 0:
		return fmt.Errorf("%w: --%s must not be negative", errInvalidArgument, batchSizeFlagName)
	}
	return nil
}

// execute loads the ingest file and runs the selected resources. Every
// resource runs even when an earlier one fails.
func (o *runOptions) execute(ctx context.Context) error {
	p, err := loadProject(o.configPath)
	if p != nil {
		printIssues(o.errOut, p.issues)
	}
	if err != nil {
		return err
	}

	for _, name := range o.resources {
		if _, ok := p.cfg.Resource(name); !ok {
			return fmt.Errorf("%w: unknown resource %q", errInvalidArgument, name)
		}
	}

	eng, err := p.newEngine(logger.FromContext(ctx))
	if err != nil {
		return err
	}

	if o.all {
		summaries, err := eng.RunAll(ctx, o.run)
		for _, s := range summaries {
			printSummary(o.out, s)
		}
		return err
	}

	var errs []error
	for _, name := range o.resources {
		s, err := eng.Run(ctx, name, o.run)
		printSummary(o.out, s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func printSummary(w io.Writer, s engine.Summary) {
	fmt.Fprintf(w, "%s: %s read=%s written=%s failed=%s duration=%s\n",
		s.Resource,
		s.Status,
		humanize.Comma(s.RecordsRead),
		humanize.Comma(s.RecordsWritten),
		humanize.Comma(s.RecordsFailed),
		s.Duration.Round(time.Millisecond))
	if s.ErrorLog != "" {
		fmt.Fprintf(w, "  error log: %s\n", s.ErrorLog)
	}
	if s.Watermark != nil {
		fmt.Fprintf(w, "  watermark: %v\n", s.Watermark)
	}
	for _, g := range s.Gaps {
		fmt.Fprintf(w, "  gap: %s missing between %d and %d\n", humanize.Comma(g.MissingCount), g.After, g.Before)
	}
}
