package interceptors

import (
	"context"
	"time"

	"github.com/Dhoini/steadybooks-integration/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type LoggingInterceptor struct {
	log *logger.Logger
}

func NewLoggingInterceptor(log *logger.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{log: log.With("component", "grpc")}
}

// Unary логирует вызов и превращает панику обработчика в codes.Internal.
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				i.log.Errorw("gRPC handler panic", "method", info.FullMethod, "panic", r)
				resp, err = nil, status.Errorf(codes.Internal, "internal error")
			}

			code := status.Code(err)
			fields := []interface{}{
				"method", info.FullMethod,
				"code", code.String(),
				"latency_ms", time.Since(start).Milliseconds(),
			}
			if code == codes.OK {
				i.log.Debugw("gRPC request", fields...)
				return
			}
			i.log.Warnw("gRPC request failed", append(fields, "error", err)...)
		}()

		return handler(ctx, req)
	}
}
