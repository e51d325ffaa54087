package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/internal/cache"
	"github.com/inantubek/rmnist/internal/evaluator"
	"github.com/inantubek/rmnist/internal/metrics"
	"github.com/inantubek/rmnist/internal/report"
	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/internal/server"
	"github.com/inantubek/rmnist/internal/space"
	"github.com/inantubek/rmnist/pkg/config"
	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/utils"
)

const serviceName = "rmnist-tuner"

func main() {
	var configPath string
	var grpcAddr string
	var httpAddr string
	var logLevel string

	flag.StringVar(&configPath, "config", "", "path to the YAML configuration (defaults apply when empty)")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (overrides the config)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides the config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if grpcAddr != "" {
		cfg.Server.GRPCAddr = grpcAddr
	}
	if httpAddr != "" {
		cfg.Server.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.SetDefault(logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout))

	if err := run(cfg); err != nil {
		logger.Error("tuner exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		telemetry *metrics.Metrics
		metricsH  http.Handler
		err       error
	)
	if cfg.Telemetry.Metrics {
		telemetry, err = metrics.InitMetrics(serviceName)
		if err != nil {
			return err
		}
		metricsH = telemetry.Handler
	}
	tracing, err := metrics.InitTracing(serviceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.TraceStdout)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.ShutdownAll(shutdownCtx, telemetry, tracing); err != nil {
			logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	a, summary, recorder, hub, err := buildAnnealer(cfg)
	if err != nil {
		return err
	}
	defer hub.Close()

	conditions, err := runner.ConditionsFromConfig(cfg.Runner)
	if err != nil {
		return err
	}

	notifier := server.NewNotifier()
	opts := []runner.Option{
		runner.WithStopConditions(conditions...),
		runner.WithRetryPolicy(runner.NewRetryPolicy(cfg.Runner.Retry)),
		runner.WithFinishHook(hub.PublishStatus),
		runner.WithFinishHook(func(st runner.Status) {
			if err := notifier.Notify(cfg.Server.CallbackURL, cfg.Server.CallbackSecret, st); err != nil {
				logger.Warn("callback rejected", "url", cfg.Server.CallbackURL, "error", err)
			}
		}),
	}
	if recorder != nil {
		opts = append(opts, runner.WithErrorHook(func(ctx context.Context, _ error) {
			recorder.RecordEvaluationError(ctx)
		}))
	}
	r := runner.New(a, opts...)

	// TODO: Configure gRPC server security (e.g., TLS, authentication)
	// before exposing the control channel outside a trusted network.
	grpcServer := grpc.NewServer()
	server.RegisterControlServer(grpcServer, server.NewControlGRPCServer(r))

	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", cfg.Server.GRPCAddr, err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHTTPServer(r, summary, hub, metricsH).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	if err := r.Start(ctx); err != nil {
		return err
	}
	logger.Info("search started", "run_id", r.ID(), "energy_scale", a.EnergyScale())

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		_ = r.Stop()
		<-r.Done()
	case <-r.Done():
		// Keep serving results until asked to exit.
		<-ctx.Done()
		logger.Info("shutdown requested")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.GracefulStop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	notifier.Wait()
	return nil
}

func buildAnnealer(cfg *config.Config) (*anneal.Annealer, *report.Summary, *metrics.Recorder, *server.Hub, error) {
	moves, err := space.NewMoveSet(space.Steps{
		RateFactor:    cfg.Moves.RateFactor,
		RateFloor:     cfg.Moves.RateFloor,
		RateCeiling:   cfg.Moves.RateCeiling,
		KernelStep:    cfg.Moves.KernelStep,
		KernelFloor:   cfg.Moves.KernelFloor,
		EnsembleStep:  cfg.Moves.EnsembleStep,
		EnsembleFloor: cfg.Moves.EnsembleFloor,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid move set: %w", err)
	}
	sp, err := space.New(cfg.Search.Initial, moves)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("invalid initial configuration: %w", err)
	}

	ev, err := evaluator.FromConfig(cfg.Evaluator)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	rng := utils.NewRandSource(cfg.Search.Seed)
	logger.Info("search seeded", "seed", rng.Seed())

	summary := report.NewSummary()
	hub := server.NewHub()
	observers := []anneal.Observer{report.NewLogObserver(nil), summary, hub}

	var recorder *metrics.Recorder
	if cfg.Telemetry.Metrics {
		recorder, err = metrics.NewRecorder(nil)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		observers = append(observers, recorder)
	}

	a, err := anneal.New(sp, cache.New(cfg.Cache.Quantum), ev,
		anneal.WithEnergyScale(cfg.Search.EnergyScale),
		anneal.WithRand(rng),
		anneal.WithObserver(observers...),
	)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return a, summary, recorder, hub, nil
}
