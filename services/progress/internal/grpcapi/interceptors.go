package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/example/lems/services/progress/internal/ratelimit"
)

// writeMethods are throttled per learner.
var writeMethods = map[string]bool{
	fullMethod("CompleteQuiz"):   true,
	fullMethod("CompleteLesson"): true,
}

// RateLimit throttles CompleteQuiz and CompleteLesson per learner. A nil
// limiter disables it.
func RateLimit(l *ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if l == nil || !writeMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		key := "grpc"
		if r, ok := req.(learnerScoped); ok {
			if id := learnerID(ctx, r); id != "" {
				key = id
			}
		}
		if ok, wait := l.Allow(key); !ok {
			return nil, errRateLimited(wait)
		}
		return handler(ctx, req)
	}
}

// AccessLog writes one line per call.
func AccessLog(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Info("grpc request",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
