package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	apigrpc "github.com/Dhoini/steadybooks-integration/internal/api/grpc"
	"github.com/Dhoini/steadybooks-integration/internal/api/rest"
	"github.com/Dhoini/steadybooks-integration/internal/app"
	"github.com/Dhoini/steadybooks-integration/internal/config"
	"github.com/Dhoini/steadybooks-integration/internal/interceptors"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	shutdownTimeout     = 10 * time.Second
	breakerPollInterval = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	healthcheck := flag.Bool("healthcheck", false, "query the local gRPC health endpoint and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.New(logger.INFO).Fatalw("Failed to load configuration", "error", err)
	}
	log := logger.New(logger.ParseLevel(cfg.App.LogLevel))

	if *healthcheck {
		code := runHealthcheck(cfg, log)
		_ = log.Sync()
		os.Exit(code)
	}
	defer func() { _ = log.Sync() }()

	log.Infow("Integration service starting up", "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer func() { _ = application.Close() }()

	httpServer := rest.NewServer(application.Router, cfg.App.Port, log)
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Errorw("HTTP server stopped with error", "error", err)
			stop()
		}
	}()

	var grpcServer *apigrpc.Server
	if cfg.GRPC.Port != "" {
		grpcServer, err = apigrpc.NewServer(cfg.GRPC, log, interceptors.NewLoggingInterceptor(log).Unary())
		if err != nil {
			log.Fatalw("Failed to initialize gRPC server", "error", err)
		}
		go grpcServer.WatchBreaker(ctx, application.Policy, breakerPollInterval)
		go func() {
			if err := grpcServer.Start(); err != nil {
				log.Errorw("gRPC server stopped with error", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	log.Infow("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.Stop()
	}

	log.Infow("Cleanup finished. Goodbye!")
}

// runHealthcheck возвращает код выхода для HEALTHCHECK контейнера.
func runHealthcheck(cfg *config.Config, log *logger.Logger) int {
	if cfg.GRPC.Port == "" {
		log.Errorw("gRPC port is not configured, nothing to check")
		return 1
	}

	opts := apigrpc.DefaultClientOptions("localhost:" + cfg.GRPC.Port)
	opts.KeepAlive = false
	opts.UseTLS = cfg.GRPC.UseTLS
	client, err := apigrpc.NewClient(opts, log)
	if err != nil {
		log.Errorw("Healthcheck failed", "error", err)
		return 1
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	status, err := client.CheckHealth(ctx, "")
	if err != nil || status != healthpb.HealthCheckResponse_SERVING {
		log.Errorw("Healthcheck failed", "status", status.String(), "error", err)
		return 1
	}
	return 0
}
