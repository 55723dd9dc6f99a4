package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"conduit/internal/config"
	"conduit/internal/connector"
	"conduit/internal/engine"
	"conduit/internal/logger"
	"conduit/internal/manifest"
	"conduit/internal/metrics"
	"conduit/internal/metrics/datadog"
	"conduit/internal/metrics/prompush"
	"conduit/internal/storage/all"
)

const defaultMetricsJob = "conduit"

var (
	errNoArguments     = errors.New("no resource name provided")
	errInvalidArgument = errors.New("invalid arguments")
	errInvalidConfig   = errors.New("configuration is invalid")
)

// handleError will do custom print error handling based on the type of error received.
// it will return nil if the command must return 0 exit code, otherwise it will return
// the original error.
func handleError(cmd *cobra.Command, err error) error {
	switch {
	case errors.Is(err, errNoArguments):
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return nil
	case errors.Is(err, errInvalidArgument):
		cmd.PrintErrln(err)
		_ = cmd.Usage() // do not check error as we cannot do much about it
		return err
	default:
		cmd.PrintErrln(err)
		return err
	}
}

// project is a loaded ingest file together with the connectors it can use.
type project struct {
	cfg      *config.File
	registry *connector.Registry
	issues   []config.Issue
}

// loadProject reads the ingest file at path, overlays the environment and
// lints the result. Error-level issues fail the load; every issue is
// returned so callers can print them.
func loadProject(path string) (*project, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	reg := all.NewRegistry()
	p := &project{cfg: cfg, registry: reg, issues: config.Validate(cfg, reg)}
	if config.HasErrors(p.issues) {
		return p, fmt.Errorf("%w: %s", errInvalidConfig, path)
	}
	return p, nil
}

// loadConfig reads the ingest file at path and overlays the environment
// without linting it. Commands that only inspect state use it so a file
// with errors can still be examined.
func loadConfig(path string) (*config.File, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(env)
	return cfg, nil
}

// printIssues writes one "severity: path: message" line per issue.
func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}

// newEngine builds an engine with the project's metrics backend and run
// manifest. The returned recorder is flushed by the engine after each run.
func (p *project) newEngine(log logger.Logger) (*engine.Engine, error) {
	rec, err := newRecorder(p.cfg.Metrics)
	if err != nil {
		return nil, err
	}

	man, err := manifest.Open(p.cfg.Runtime.Manifest())
	if err != nil {
		return nil, err
	}

	return engine.New(p.cfg, engine.Options{
		Registry: p.registry,
		Metrics:  rec,
		Manifest: man,
		Logger:   log,
	})
}

// stateEngine returns an engine over cfg's state directory for commands
// that inspect or reset state without running anything.
func stateEngine(cfg *config.File, log logger.Logger) (*engine.Engine, error) {
	return engine.New(cfg, engine.Options{Registry: all.NewRegistry(), Logger: log})
}

// newRecorder selects the metrics backend named in m.
func newRecorder(m config.Metrics) (*metrics.Recorder, error) {
	job := m.Job
	if job == "" {
		job = defaultMetricsJob
	}

	var backend metrics.Backend
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "pushgateway":
		b, err := prompush.NewBackend(job, m.PushgatewayURL, nil)
		if err != nil {
			return nil, err
		}
		backend = b
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DogStatsDAddr,
			Namespace:  job + ".",
			GlobalTags: m.Tags,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	case "", "none":
		backend = metrics.Nop{}
	default:
		return nil, fmt.Errorf("%w: unknown metrics backend %q", errInvalidConfig, m.Backend)
	}

	return metrics.NewRecorder(backend, job), nil
}
