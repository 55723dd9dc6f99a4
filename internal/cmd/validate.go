package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"conduit/internal/engine"
	"conduit/internal/logger"
)

const (
	validateCmdUsage = "validate"
	validateCmdShort = "check the ingest file for errors"
	validateCmdLong  = `Check the ingest file for errors.

	Every finding is printed as "severity: path: message". Warnings do not
	fail the command. With --preflight each resource is also checked against
	its connectors: connections are tested, the destination table is looked
	up, a source sample is compared with the table and the stored schema,
	and the quality and incremental setup is reported. Nothing is written.`

	validateCmdExample = `# Lint the default ingest file
	conduit validate

	# Lint a file and test every connection it names
	conduit validate -c prod.yaml --preflight`
)

// validateFlags holds the flags for the "validate" command.
type validateFlags struct {
	configFlags
	preflight bool
}

// addFlags adds the cli flags to the cobra command.
func (f *validateFlags) addFlags(cmd *cobra.Command) {
	f.configFlags.addFlags(cmd)
	cmd.Flags().BoolVar(&f.preflight, preflightFlagName, false, preflightFlagUsage)
}

// ValidateCmd returns the Cobra command that lints the ingest file.
func ValidateCmd() *cobra.Command {
	flags := &validateFlags{}
	cmd := &cobra.Command{
		Use:     validateCmdUsage,
		Short:   heredoc.Doc(validateCmdShort),
		Long:    heredoc.Doc(validateCmdLong),
		Example: heredoc.Doc(validateCmdExample),

		SilenceErrors: true,
		SilenceUsage:  true,

		Args:              cobra.NoArgs,
		ValidArgsFunction: cobra.NoFileCompletions,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := &validateOptions{
				configPath: flags.configPath,
				preflight:  flags.preflight,
				out:        cmd.OutOrStdout(),
				errOut:     cmd.ErrOrStderr(),
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

// validateOptions configures a "validate" invocation.
type validateOptions struct {
	configPath string
	preflight  bool

	out    io.Writer
	errOut io.Writer
}

func (o *validateOptions) execute(ctx context.Context) error {
	p, err := loadProject(o.configPath)
	if p != nil {
		printIssues(o.errOut, p.issues)
	}
	if err != nil {
		return err
	}

	if o.preflight {
		eng, err := p.newEngine(logger.FromContext(ctx))
		if err != nil {
			return err
		}

		var errs []error
		for _, res := range p.cfg.Resources {
			report, err := eng.Preflight(ctx, res.Name)
			printReport(o.out, report)
			if err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}
	}

	fmt.Fprintf(o.out, "configuration is valid: %s\n", o.configPath)
	return nil
}

// printReport writes one "[resource] STATUS check: message" line per check.
func printReport(w io.Writer, report engine.PreflightReport) {
	for _, c := range report.Checks {
		fmt.Fprintf(w, "[%s] %s %s: %s\n", report.Resource, strings.ToUpper(string(c.Status)), c.Name, c.Message)
	}
}
