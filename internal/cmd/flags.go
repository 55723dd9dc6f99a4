package cmd

import (
	"github.com/spf13/cobra"
)

const (
	configFlagName    = "config"
	configFlagShort   = "c"
	configFlagUsage   = "path to the ingest configuration file"
	defaultConfigPath = "conduit.yaml"

	dryRunFlagName  = "dry-run"
	dryRunFlagUsage = "read, validate and transform records without writing data, DDL or state"

	resumeFlagName  = "resume"
	resumeFlagUsage = "start from the last checkpoint of each resource when one exists"

	batchSizeFlagName  = "batch-size"
	batchSizeFlagUsage = "override the configured batch size"

	allFlagName  = "all"
	allFlagUsage = "run every resource in the configuration file"

	preflightFlagName  = "preflight"
	preflightFlagUsage = "also open every source and destination and test their connections"

	failedFlagName  = "failed"
	failedFlagUsage = "only show failed runs"

	pipelineFlagName  = "pipeline"
	pipelineFlagUsage = "only show runs of the named resource"

	limitFlagName  = "limit"
	limitFlagUsage = "maximum number of entries to show, 0 for all"
)

// configFlags is embedded by every command that reads the ingest file.
type configFlags struct {
	configPath string
}

// addFlags registers the configuration flag on cmd and its children.
func (f *configFlags) addFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.configPath, configFlagName, configFlagShort, defaultConfigPath, configFlagUsage)
}
