package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clinicsched/backend/internal/auth"
)

// RequestTimeoutInterceptor applies timeout to calls that arrive without a deadline.
func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

// AuthInterceptor verifies the bearer token in the authorization metadata
// and attaches the caller to the context.
func AuthInterceptor(verifier *auth.Verifier, log *slog.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc.auth"))

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get("authorization"); len(values) > 0 {
				header = values[0]
			}
		}

		token, err := auth.BearerToken(header)
		if err != nil {
			log.Info("unauthenticated", slog.String("rpc", info.FullMethod), slog.String("reason", "missing_token"))
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		caller, err := verifier.Verify(token)
		if err != nil {
			log.Info("unauthenticated", slog.String("rpc", info.FullMethod), slog.String("reason", "invalid_token"))
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return handler(auth.WithCaller(ctx, caller), req)
	}
}
