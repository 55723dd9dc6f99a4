package cmd

import (
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"conduit/internal/manifest"
)

const (
	manifestCmdUsage = "manifest"
	manifestCmdShort = "show the run history"
	manifestCmdLong  = `Show the run history recorded in the run manifest.

	Runs are listed oldest first with their status, record counts and the
	error that stopped them, if any.`

	manifestCmdExample = `# Show every run
	conduit manifest

	# Show the last five failed runs of one resource
	conduit manifest --pipeline orders --failed --limit 5`
)

// manifestFlags holds the flags for the "manifest" command.
type manifestFlags struct {
	configFlags
	failed   bool
	pipeline string
	limit    int
}

// addFlags adds the cli flags to the cobra command.
func (f *manifestFlags) addFlags(cmd *cobra.Command) {
	f.configFlags.addFlags(cmd)
	cmd.Flags().BoolVar(&f.failed, failedFlagName, false, failedFlagUsage)
	cmd.Flags().StringVar(&f.pipeline, pipelineFlagName, "", pipelineFlagUsage)
	cmd.Flags().IntVar(&f.limit, limitFlagName, 0, limitFlagUsage)
}

// ManifestCmd returns the Cobra command that prints the run manifest.
func ManifestCmd() *cobra.Command {
	flags := &manifestFlags{}
	cmd := &cobra.Command{
		Use:     manifestCmdUsage,
		Short:   heredoc.Doc(manifestCmdShort),
		Long:    heredoc.Doc(manifestCmdLong),
		Example: heredoc.Doc(manifestCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.limit < 0 {
				return handleError(cmd, fmt.Errorf("%w: --%s must not be negative", errInvalidArgument, limitFlagName))
			}

			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return handleError(cmd, err)
			}

			m, err := manifest.Open(cfg.Runtime.Manifest())
			if err != nil {
				return handleError(cmd, err)
			}

			printEntries(cmd.OutOrStdout(), selectEntries(m, flags.pipeline, flags.failed, flags.limit))
			return nil
		},
	}

	flags.addFlags(cmd)
	return cmd
}

// selectEntries applies the command filters and keeps the newest limit
// entries.
func selectEntries(m *manifest.Manifest, pipeline string, failed bool, limit int) []manifest.Entry {
	out := m.All(pipeline)
	if failed {
		out = nil
		for _, e := range m.Failed() {
			if pipeline == "" || e.PipelineName == pipeline {
				out = append(out, e)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func printEntries(w io.Writer, entries []manifest.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s %s %s started=%s read=%s written=%s failed=%s duration=%.2fs\n",
			e.RunID,
			e.PipelineName,
			e.Status,
			humanize.Time(e.StartedAt),
			humanize.Comma(e.RecordsRead),
			humanize.Comma(e.RecordsWritten),
			humanize.Comma(e.RecordsFailed),
			e.DurationSeconds)
		if e.ErrorMessage != "" {
			fmt.Fprintf(w, "  error: %s\n", e.ErrorMessage)
		}
	}
}
