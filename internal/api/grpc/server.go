package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Dhoini/steadybooks-integration/internal/config"
	"github.com/Dhoini/steadybooks-integration/internal/resilience"
	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName имя сервиса в протоколе grpc.health.v1. Его статус следует
// за предохранителем исходящих вызовов.
const ServiceName = "steadybooks.integration.v1.Integration"

// BreakerReporter отдает состояние предохранителя класса.
type BreakerReporter interface {
	BreakerState(class resilience.Class) resilience.CircuitState
}

// Server gRPC сервер
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	log        *logger.Logger
	addr       string
}

// NewServer создает новый gRPC сервер
func NewServer(cfg config.GRPCConfig, log *logger.Logger, interceptors ...grpc.UnaryServerInterceptor) (*Server, error) {
	// Опции для gRPC
	var opts []grpc.ServerOption

	// Настройки keepalive для gRPC
	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     time.Minute * 5,  // Максимальное время простоя соединения
		MaxConnectionAge:      time.Hour,        // Максимальное время жизни соединения
		MaxConnectionAgeGrace: time.Minute * 5,  // Дополнительное время для завершения запросов при закрытии соединения
		Time:                  time.Minute * 2,  // Время между пингами для проверки активности
		Timeout:               time.Second * 20, // Таймаут после которого соединение закрывается если нет ответа на пинг
	}
	opts = append(opts, grpc.KeepaliveParams(kaParams))

	if cfg.UseTLS {
		creds, err := credentials.NewServerTLSFromFile(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	if len(interceptors) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(interceptors...))
	}

	grpcServer := grpc.NewServer(opts...)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Включаем reflection для удобства отладки (например, с помощью grpcurl)
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		log:        log.With("component", "grpc"),
		addr:       ":" + cfg.Port,
	}, nil
}

// Start слушает адрес из конфигурации и блокируется до Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve обслуживает готовый listener.
func (s *Server) Serve(listener net.Listener) error {
	s.log.Infow("Starting gRPC server", "addr", listener.Addr().String())
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// WatchBreaker опрашивает предохранитель и переводит ServiceName в NOT_SERVING,
// пока он открыт. Возвращается при отмене ctx.
func (s *Server) WatchBreaker(ctx context.Context, breakers BreakerReporter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := healthpb.HealthCheckResponse_SERVING
	for {
		next := healthpb.HealthCheckResponse_SERVING
		if breakers.BreakerState(resilience.ClassOutboundAPI) == resilience.CircuitOpen {
			next = healthpb.HealthCheckResponse_NOT_SERVING
		}
		if next != last {
			s.log.Infow("gRPC health status changed", "service", ServiceName, "status", next.String())
			s.health.SetServingStatus(ServiceName, next)
			last = next
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop останавливает gRPC сервер
func (s *Server) Stop() {
	s.log.Infow("Stopping gRPC server")
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}
