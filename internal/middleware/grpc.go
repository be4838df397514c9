package middleware

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-inventory-service/internal/apperr"
	"github.com/fekuna/omnipos-inventory-service/internal/auth"
	"github.com/fekuna/omnipos-inventory-service/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor resolves the caller from metadata, logs the call and turns
// typed errors into gRPC statuses.
func UnaryInterceptor(log logger.ZapLogger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a, ok := auth.ActorFrom(ctx); ok {
			ctx = auth.WithActor(ctx, a)
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		if err == nil {
			log.Debug("gRPC call", zap.String("method", info.FullMethod), zap.Duration("took", time.Since(start)))
			return resp, nil
		}

		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		kind := apperr.KindOf(err)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("kind", string(kind)),
			zap.Duration("took", time.Since(start)),
			zap.Error(err),
		}
		if kind == apperr.InternalError {
			log.Error("gRPC call failed", fields...)
		} else {
			log.Info("gRPC call rejected", fields...)
		}
		return nil, status.Error(apperr.GRPCCode(kind), err.Error())
	}
}
