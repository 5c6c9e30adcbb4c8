package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/gmloop/internal/platform/config"
	"github.com/louisbranch/gmloop/internal/platform/otel"
)

// ServiceNarrator names the narrator process in logs and trace resources.
const ServiceNarrator = "narrator"

const (
	// envDotEnvPath names an optional dotenv file loaded before env parsing.
	envDotEnvPath  = "GMLOOP_DOTENV"
	defaultDotEnv  = ".env"
	defaultStopTTL = 5 * time.Second
)

// TelemetrySetup installs tracing for a service and returns its flush hook.
type TelemetrySetup func(ctx context.Context, service string) (func(context.Context) error, error)

// RunOptions tunes how a service process starts and stops.
type RunOptions struct {
	// ShutdownTimeout bounds the telemetry flush after the run loop returns.
	ShutdownTimeout time.Duration
	// Telemetry replaces otel.Setup.
	Telemetry TelemetrySetup
}

func (o RunOptions) withDefaults() RunOptions {
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultStopTTL
	}
	if o.Telemetry == nil {
		o.Telemetry = otel.Setup
	}
	return o
}

// ParseConfig fills cfg from the dotenv file named by GMLOOP_DOTENV (or
// ./.env) and then from the process environment, which wins.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	path := strings.TrimSpace(os.Getenv(envDotEnvPath))
	if path == "" {
		path = defaultDotEnv
	}
	if err := config.LoadDotEnv(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return config.ParseEnv(cfg)
}

// ParseArgs applies command-line flags on top of env-derived defaults.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// RunWithTelemetry runs a service loop with default options.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	return RunWithTelemetryAndOptions(ctx, service, RunOptions{}, run)
}

// RunWithTelemetryAndOptions installs telemetry, runs the service loop and
// flushes telemetry once the loop returns. A loop that stops with
// context.Canceled because ctx was cancelled is a clean exit.
func RunWithTelemetryAndOptions(ctx context.Context, service string, options RunOptions, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}
	if run == nil {
		return errors.New("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	options = options.withDefaults()

	flush, err := options.Telemetry(ctx, service)
	if err != nil {
		return fmt.Errorf("%s telemetry: %w", service, err)
	}
	log.Printf("%s: starting", service)
	err = run(ctx)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	stopTelemetry(service, flush, options.ShutdownTimeout)
	if err != nil {
		log.Printf("%s: stopped: %v", service, err)
		return err
	}
	log.Printf("%s: stopped", service)
	return nil
}

// stopTelemetry flushes on a fresh context since the run context is
// usually cancelled by now.
func stopTelemetry(service string, flush func(context.Context) error, timeout time.Duration) {
	if flush == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := flush(ctx); err != nil {
		log.Printf("%s: telemetry flush: %v", service, err)
	}
}
