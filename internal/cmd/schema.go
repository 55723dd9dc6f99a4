package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"conduit/internal/logger"
	"conduit/internal/schema"
)

const (
	schemaCmdUsage = "schema"
	schemaCmdShort = "inspect stored schemas"

	schemaHistoryCmdUsage = "history RESOURCE"
	schemaHistoryCmdShort = "show the schema versions stored for a resource"
	schemaHistoryCmdLong  = `Show the schema versions stored for a resource.

	The current schema is printed first, followed by superseded versions,
	newest first.`

	schemaHistoryCmdExample = `# Show the last three schema versions of orders
	conduit schema history orders --limit 3`
)

// schemaFlags holds the flags for the "schema history" command.
type schemaFlags struct {
	configFlags
	limit int
}

// SchemaCmd returns the Cobra command group for schemas.
func SchemaCmd() *cobra.Command {
	flags := &schemaFlags{}
	cmd := &cobra.Command{
		Use:   schemaCmdUsage,
		Short: heredoc.Doc(schemaCmdShort),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handleError(cmd, errNoArguments)
		},
	}

	flags.configFlags.addFlags(cmd)
	cmd.AddCommand(schemaHistoryCmd(flags))
	return cmd
}

func schemaHistoryCmd(flags *schemaFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     schemaHistoryCmdUsage,
		Short:   heredoc.Doc(schemaHistoryCmdShort),
		Long:    heredoc.Doc(schemaHistoryCmdLong),
		Example: heredoc.Doc(schemaHistoryCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 0:
				return handleError(cmd, errNoArguments)
			case len(args) > 1:
				return handleError(cmd, fmt.Errorf("%w: expected a single resource name", errInvalidArgument))
			case flags.limit < 0:
				return handleError(cmd, fmt.Errorf("%w: --%s must not be negative", errInvalidArgument, limitFlagName))
			}

			if err := schemaHistory(cmd.Context(), flags, args[0], cmd.OutOrStdout()); err != nil {
				return handleError(cmd, err)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flags.limit, limitFlagName, 10, limitFlagUsage)
	return cmd
}

func schemaHistory(ctx context.Context, flags *schemaFlags, resource string, w io.Writer) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return err
	}
	eng, err := stateEngine(cfg, logger.FromContext(ctx))
	if err != nil {
		return err
	}

	current, err := eng.Schemas().LoadLast(resource)
	if err != nil {
		return err
	}
	if current == nil {
		fmt.Fprintf(w, "no schema stored for %s\n", resource)
		return nil
	}
	printVersion(w, "current", *current)

	history, err := eng.Schemas().History(resource, flags.limit)
	if err != nil {
		return err
	}
	for _, v := range history {
		printVersion(w, "archived", v)
	}
	return nil
}

func printVersion(w io.Writer, label string, v schema.Version) {
	fmt.Fprintf(w, "%s v%d %s hash=%s\n", label, v.Version, v.Timestamp.Format(time.RFC3339), v.Hash)
	for _, c := range v.Schema.Columns {
		null := "not null"
		if c.Nullable {
			null = "null"
		}
		fmt.Fprintf(w, "  %s %s %s\n", c.Name, c.Type, null)
	}
}
