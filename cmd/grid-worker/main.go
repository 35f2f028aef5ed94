package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	ddotel "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/opentelemetry"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/taskgrid/taskgrid/internal/pkg/env"
	"github.com/taskgrid/taskgrid/internal/pkg/log"
	"github.com/taskgrid/taskgrid/internal/pkg/service/common/servicectx"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/config"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/dependencies"
	"github.com/taskgrid/taskgrid/internal/pkg/service/grid/worker/service"
	"github.com/taskgrid/taskgrid/internal/pkg/telemetry"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/cpuprofile"
	"github.com/taskgrid/taskgrid/internal/pkg/utils/errors"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("fatal error: %s\n", err.Error()) // nolint:forbidigo
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration.
	envs, err := env.FromOs()
	if err != nil {
		return errors.Errorf("cannot load envs: %w", err)
	}
	cfg, err := config.LoadFrom(os.Args, envs)
	if errors.Is(err, pflag.ErrHelp) {
		// Stop on --help flag
		return nil
	} else if err != nil {
		return err
	}

	// Create logger.
	logger := log.NewServiceLogger(os.Stderr, cfg.Debug).AddPrefix("[gridWorker]")

	// Start CPU profiling, if enabled.
	if cfg.CPUProfFilePath != "" {
		stop, err := cpuprofile.Start(cfg.CPUProfFilePath, logger)
		if err != nil {
			return errors.Errorf(`cannot start cpu profiling: %w`, err)
		}
		defer stop()
	}

	// Start DataDog tracer.
	tel := telemetry.NewNop()
	if cfg.DatadogEnabled {
		tracerProvider := ddotel.NewTracerProvider(
			tracer.WithLogger(telemetry.NewDDLogger(logger)),
			tracer.WithRuntimeMetrics(),
			tracer.WithAnalytics(true),
			tracer.WithDebugMode(cfg.DatadogDebug),
		)
		defer func() { _ = tracerProvider.Shutdown() }()
		tel = telemetry.New(telemetry.WrapDD(tracerProvider.Tracer("")), nil)
	}

	// Create process abstraction.
	proc, err := servicectx.New(ctx, cancel, logger)
	if err != nil {
		return err
	}

	// Create dependencies.
	serviceDeps, err := dependencies.NewServiceDeps(ctx, proc, cfg, envs, logger, tel)
	if err != nil {
		return err
	}
	d, err := dependencies.NewWorkerDeps(ctx, serviceDeps)
	if err != nil {
		return err
	}

	// Create service.
	logger.Infof("starting Grid WORKER, debug=%t, debug-etcd=%t", cfg.Debug, cfg.DebugEtcd)
	_, err = service.New(d)
	if err != nil {
		return err
	}

	// Wait for the service shutdown.
	proc.WaitForShutdown()
	return nil
}
