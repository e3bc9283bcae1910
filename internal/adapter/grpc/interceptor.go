package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/simaogato/dealflow-backend/internal/auth"
)

// AuthInterceptor returns a gRPC unary server interceptor that validates
// the bearer JWT from the authorization metadata.
// If the token is missing or invalid, it returns status.Unauthenticated.
// If valid, the handler runs with the token subject as the actor.
func AuthInterceptor(jwtManager *auth.JWTManager) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.Unauthenticated, "missing metadata")
		}

		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
		}

		claims, err := jwtManager.ValidateHeader(values[0])
		if err != nil {
			return nil, status.Errorf(codes.Unauthenticated, "invalid token")
		}

		return handler(auth.WithActor(ctx, claims.Subject), req)
	}
}

// LoggingInterceptor logs every RPC with its method, actor, duration and status code
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start).Milliseconds()

		// Empty when chained ahead of AuthInterceptor
		actor := auth.ActorFrom(ctx)

		if err != nil {
			st, _ := status.FromError(err)
			attrs := []any{
				"method", info.FullMethod,
				"code", st.Code().String(),
				"error", st.Message(),
				"actor", actor,
				"duration_ms", duration,
			}
			if st.Code() == codes.Internal || st.Code() == codes.Unknown {
				logger.Error("RPC error", attrs...)
			} else {
				logger.Warn("RPC error", attrs...)
			}
			return resp, err
		}

		logger.Info("RPC ok",
			"method", info.FullMethod,
			"actor", actor,
			"duration_ms", duration,
		)
		return resp, nil
	}
}
