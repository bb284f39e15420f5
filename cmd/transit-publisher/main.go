package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/transit-publisher/internal/pkg/application/config"
	"github.com/diwise/transit-publisher/internal/pkg/application/dispatch"
	"github.com/diwise/transit-publisher/internal/pkg/application/pipeline"
	"github.com/diwise/transit-publisher/internal/pkg/infrastructure/router"
	"github.com/diwise/transit-publisher/internal/pkg/presentation/api"
	"github.com/go-chi/chi/v5"
)

const serviceName string = "transit-publisher"

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion, "json")
	defer cleanup()

	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fatal(ctx, "invalid command line", err)
	}

	cfg, err := loadConfiguration(ctx, flags[configPath])
	if err != nil {
		fatal(ctx, "failed to load configuration", err)
	}

	pipelines, err := pipeline.NewFromConfig(cfg)
	if err != nil {
		fatal(ctx, "failed to create pipelines", err)
	}

	if flags[runPipeline] != "" && flags[runEvery] == "" {
		if err = runOnce(ctx, pipelines, flags[runPipeline], flags[agencyName]); err != nil {
			os.Exit(1)
		}
		return
	}

	policies, err := os.Open(flags[opaPath])
	if err != nil {
		fatal(ctx, "unable to open opa policy file", err)
	}
	defer policies.Close()

	r, dispatcher, err := initialize(ctx, flags, pipelines, policies)
	if err != nil {
		fatal(ctx, "failed to initialize service", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher.Start()
	defer dispatcher.Stop()

	if flags[runEvery] != "" {
		interval, err := scheduleInterval(flags)
		if err != nil {
			fatal(ctx, "invalid schedule", err)
		}
		dispatcher.Enqueue(ctx, flags[runPipeline], flags[agencyName])
		dispatcher.Schedule(ctx, flags[runPipeline], flags[agencyName], interval)
	}

	server := &http.Server{
		Addr:    net.JoinHostPort(flags[listenAddress], flags[servicePort]),
		Handler: r,
	}

	go func() {
		logger.Info("starting to listen for connections", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to listen for connections", "err", err.Error())
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	server.Shutdown(shutdownCtx)
	logger.Info("shutting down")
}

func initialize(ctx context.Context, flags FlagMap, runner dispatch.Runner, policies io.Reader) (*chi.Mux, dispatch.Dispatcher, error) {
	r := router.New(serviceName, logging.GetFromContext(ctx))
	dispatcher := dispatch.NewDispatcher(runner, 0)

	if err := api.RegisterHandlers(ctx, r, policies, dispatcher); err != nil {
		return nil, nil, err
	}

	return r, dispatcher, nil
}

// scheduleInterval validates the --every and --run combination
func scheduleInterval(flags FlagMap) (time.Duration, error) {
	if !pipeline.IsKnown(flags[runPipeline]) {
		return 0, fmt.Errorf("--every needs --run with one of %s, %s or %s", pipeline.Broker, pipeline.Places, pipeline.GTFS)
	}

	interval, err := time.ParseDuration(flags[runEvery])
	if err != nil {
		return 0, err
	}

	if interval <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", interval)
	}

	return interval, nil
}

func loadConfiguration(ctx context.Context, path string) (*config.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.GetFromContext(ctx).Warn("no configuration file found, using defaults", "path", path)
			return config.LoadConfiguration(ctx, nil)
		}
		return nil, err
	}
	defer f.Close()

	return config.LoadConfiguration(ctx, f)
}

func runOnce(ctx context.Context, runner dispatch.Runner, name, agency string) error {
	logger := logging.GetFromContext(ctx).With(slog.String("pipeline", name))

	report, err := runner.Run(ctx, name, agency)

	for _, s := range report.Stages {
		logger.Info("stage done", "stage", s.Stage, "count", s.Count)
	}

	if err != nil {
		logger.Error("pipeline failed", "err", err.Error(), "hint", pipeline.Hint(err))
		return err
	}

	logger.Info("pipeline done")
	return nil
}

func fatal(ctx context.Context, msg string, err error) {
	logging.GetFromContext(ctx).Error(msg, "err", err.Error())
	os.Exit(1)
}
