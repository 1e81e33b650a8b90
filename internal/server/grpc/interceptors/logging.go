package interceptors

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// LoggingInterceptor logs gRPC requests and responses.
// Successful health probes are logged at debug level.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	log := logger.Component("grpc")

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		code := status.Code(err)
		event := eventFor(log, info.FullMethod, code).
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Str("code", code.String())

		if err != nil {
			event.Err(err)
		}

		event.Msg("gRPC request completed")

		return resp, err
	}
}

// StreamLoggingInterceptor logs gRPC streaming requests
func StreamLoggingInterceptor() grpc.StreamServerInterceptor {
	log := logger.Component("grpc")

	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		log.Debug().
			Str("method", info.FullMethod).
			Bool("is_client_stream", info.IsClientStream).
			Bool("is_server_stream", info.IsServerStream).
			Msg("gRPC stream started")

		err := handler(srv, stream)

		code := status.Code(err)
		event := eventFor(log, info.FullMethod, code).
			Str("method", info.FullMethod).
			Dur("duration", time.Since(start)).
			Str("code", code.String())

		if err != nil {
			event.Err(err)
		}

		event.Msg("gRPC stream completed")

		return err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	log := logger.Component("grpc")

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("method", info.FullMethod).
					Interface("panic", r).
					Bytes("stack", debug.Stack()).
					Msg("gRPC handler panicked")
				resp = nil
				err = status.Error(codes.Internal, "internal error")
			}
		}()

		return handler(ctx, req)
	}
}

func eventFor(log zerolog.Logger, method string, code codes.Code) *zerolog.Event {
	switch code {
	case codes.OK, codes.Canceled:
		if strings.HasPrefix(method, healthServicePrefix) {
			return log.Debug()
		}
		return log.Info()
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return log.Error()
	default:
		return log.Warn()
	}
}
