package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// Client представляет gRPC клиент
type Client struct {
	conn *grpc.ClientConn
	log  *logger.Logger
}

// ClientOptions настройки для gRPC клиента
type ClientOptions struct {
	Address          string
	Timeout          time.Duration
	UseTLS           bool
	KeepAlive        bool
	KeepAliveTime    time.Duration
	KeepAliveTimeout time.Duration
	DialOptions      []grpc.DialOption
}

// DefaultClientOptions возвращает настройки по умолчанию
func DefaultClientOptions(address string) *ClientOptions {
	return &ClientOptions{
		Address:          address,
		Timeout:          time.Second * 10,
		KeepAlive:        true,
		KeepAliveTime:    time.Minute,
		KeepAliveTimeout: time.Second * 20,
	}
}

// NewClient создает новый gRPC клиент. Соединение устанавливается лениво при первом вызове.
func NewClient(opts *ClientOptions, log *logger.Logger) (*Client, error) {
	var dialOpts []grpc.DialOption

	if opts.UseTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(creds))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if opts.KeepAlive {
		kacp := keepalive.ClientParameters{
			Time:                opts.KeepAliveTime,    // Интервал для пингов
			Timeout:             opts.KeepAliveTimeout, // Таймаут для пингов
			PermitWithoutStream: true,                  // Разрешить пинги без активных стримов
		}
		dialOpts = append(dialOpts, grpc.WithKeepaliveParams(kacp))
	}
	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	log.Debugw("gRPC client created", "address", opts.Address)
	return &Client{conn: conn, log: log}, nil
}

// CheckHealth запрашивает статус сервиса по протоколу grpc.health.v1.
// Пустое имя сервиса означает сервер целиком.
func (c *Client) CheckHealth(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check failed: %w", err)
	}
	return resp.GetStatus(), nil
}

// Close закрывает соединение с gRPC сервером
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
