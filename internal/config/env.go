package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

var ErrEnvVariablesNotValid = errors.New("environment variables not valid")

// Env holds process-level overrides read from the environment.
type Env struct {
	StateDir       string `env:"CONDUIT_STATE_DIR"`
	LogLevel       string `env:"CONDUIT_LOG_LEVEL" envDefault:"info"`
	BatchSize      int    `env:"CONDUIT_BATCH_SIZE"`
	MaxWorkers     int    `env:"CONDUIT_MAX_WORKERS"`
	ManifestPath   string `env:"CONDUIT_MANIFEST_PATH"`
	PushgatewayURL string `env:"CONDUIT_PUSHGATEWAY_URL"`
	DogStatsDAddr  string `env:"CONDUIT_DOGSTATSD_ADDR"`
}

// LoadEnv parses Env from the process environment.
func LoadEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("%w: %s", ErrEnvVariablesNotValid, err.Error())
	}
	if e.BatchSize < 0 || e.MaxWorkers < 0 {
		return Env{}, fmt.Errorf("%w: CONDUIT_BATCH_SIZE and CONDUIT_MAX_WORKERS must not be negative", ErrEnvVariablesNotValid)
	}
	return e, nil
}

// ApplyEnv overlays the non-zero fields of e onto f. A metrics endpoint
// given in the environment also selects its backend.
func (f *File) ApplyEnv(e Env) {
	if e.StateDir != "" {
		f.Runtime.StateDir = e.StateDir
	}
	if e.BatchSize > 0 {
		f.Runtime.BatchSize = e.BatchSize
	}
	if e.MaxWorkers > 0 {
		f.ParallelExtraction.MaxWorkers = e.MaxWorkers
	}
	if e.ManifestPath != "" {
		f.Runtime.ManifestPath = e.ManifestPath
	}
	if e.PushgatewayURL != "" {
		f.Metrics.PushgatewayURL = e.PushgatewayURL
		if f.Metrics.Backend == "" || f.Metrics.Backend == "none" {
			f.Metrics.Backend = "pushgateway"
		}
	}
	if e.DogStatsDAddr != "" {
		f.Metrics.DogStatsDAddr = e.DogStatsDAddr
		if f.Metrics.Backend == "" || f.Metrics.Backend == "none" {
			f.Metrics.Backend = "datadog"
		}
	}
}
