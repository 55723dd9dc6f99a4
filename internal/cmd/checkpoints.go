package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"conduit/internal/logger"
)

const (
	checkpointsCmdUsage = "checkpoints"
	checkpointsCmdShort = "inspect or clear resume checkpoints"
	checkpointsCmdLong  = `Inspect or clear resume checkpoints.

	A checkpoint is left behind when a run stops on an unexpected error and
	records the last value written. "conduit run --resume" starts from it.`

	checkpointsListCmdUsage = "list"
	checkpointsListCmdShort = "list every stored checkpoint"

	checkpointsClearCmdUsage   = "clear RESOURCE"
	checkpointsClearCmdShort   = "delete the checkpoint of a resource"
	checkpointsClearCmdExample = `# Forget where the last orders run stopped
	conduit checkpoints clear orders`
)

// CheckpointsCmd returns the Cobra command group for checkpoints.
func CheckpointsCmd() *cobra.Command {
	flags := &configFlags{}
	cmd := &cobra.Command{
		Use:   checkpointsCmdUsage,
		Short: heredoc.Doc(checkpointsCmdShort),
		Long:  heredoc.Doc(checkpointsCmdLong),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handleError(cmd, errNoArguments)
		},
	}

	flags.addFlags(cmd)
	cmd.AddCommand(
		checkpointsListCmd(flags),
		checkpointsClearCmd(flags),
	)
	return cmd
}

func checkpointsListCmd(flags *configFlags) *cobra.Command {
	return &cobra.Command{
		Use:   checkpointsListCmdUsage,
		Short: heredoc.Doc(checkpointsListCmdShort),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := listCheckpoints(cmd.Context(), flags.configPath, cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}
}

func checkpointsClearCmd(flags *configFlags) *cobra.Command {
	return &cobra.Command{
		Use:     checkpointsClearCmdUsage,
		Short:   heredoc.Doc(checkpointsClearCmdShort),
		Example: heredoc.Doc(checkpointsClearCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch len(args) {
			case 0:
				return handleError(cmd, errNoArguments)
			case 1:
			default:
				return handleError(cmd, fmt.Errorf("%w: expected a single resource name", errInvalidArgument))
			}

			if err := clearCheckpoint(cmd.Context(), flags.configPath, args[0], cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}
}

func listCheckpoints(ctx context.Context, configPath string, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	eng, err := stateEngine(cfg, logger.FromContext(ctx))
	if err != nil {
		return err
	}

	cps, err := eng.Checkpoints().List()
	if err != nil {
		return err
	}
	if len(cps) == 0 {
		fmt.Fprintln(w, "no checkpoints")
		return nil
	}
	for _, cp := range cps {
		fmt.Fprintf(w, "%s %s=%v (%s) processed=%s saved=%s\n",
			cp.Pipeline,
			cp.Column,
			cp.Value(),
			cp.Type,
			humanize.Comma(cp.RecordsProcessed),
			humanize.Time(cp.Timestamp))
	}
	return nil
}

func clearCheckpoint(ctx context.Context, configPath, resource string, w io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	eng, err := stateEngine(cfg, logger.FromContext(ctx))
	if err != nil {
		return err
	}

	found, err := eng.Checkpoints().Clear(resource)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(w, "no checkpoint for %s\n", resource)
		return nil
	}
	fmt.Fprintf(w, "checkpoint for %s cleared\n", resource)
	return nil
}
