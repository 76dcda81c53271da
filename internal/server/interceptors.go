package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// healthMethod is the one RPC reachable without a token.
const healthMethod = "/" + RulesServiceName + "/Health"

// clientIDHeader optionally names the calling editor or search node.
const clientIDHeader = "x-client-id"

// LoggingInterceptor logs each unary RPC with its duration and, when sent,
// the caller's x-client-id.
func LoggingInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	attrs := []any{"method", info.FullMethod, "duration", time.Since(start)}
	if id := clientIDFromMetadata(ctx); id != "" {
		attrs = append(attrs, "client_id", id)
	}
	if err != nil {
		slog.Error("rpc completed", append(attrs, "code", status.Code(err), "error", err)...)
	} else {
		slog.Info("rpc completed", attrs...)
	}

	return resp, err
}

// RecoveryInterceptor turns a handler panic into codes.Internal and logs the
// stack.
func RecoveryInterceptor(
	ctx context.Context,
	req any,
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("rpc panicked", "method", info.FullMethod, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			resp, err = nil, status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}

// errUnauthenticated is the reason a bearer check failed.
type errUnauthenticated string

func (e errUnauthenticated) Error() string { return string(e) }

// checkBearer compares an Authorization value against token in constant
// time.
func checkBearer(header, token string) error {
	if header == "" {
		return errUnauthenticated("missing authorization header")
	}
	provided, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return errUnauthenticated("invalid authorization scheme")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
		return errUnauthenticated("invalid token")
	}
	return nil
}

// AuthInterceptor requires "authorization: Bearer <token>" metadata on
// every RPC except Health. An empty token disables the check.
func AuthInterceptor(token string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if token == "" || info.FullMethod == healthMethod {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		var header string
		if vals := md.Get("authorization"); len(vals) > 0 {
			header = vals[0]
		}
		if err := checkBearer(header, token); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(ctx, req)
	}
}

// AuthMiddleware is the HTTP counterpart of AuthInterceptor. GET on the
// health and metrics routes needs no token.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isPublicRoute(r) {
			if err := checkBearer(r.Header.Get("Authorization"), token); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// isPublicRoute reports whether r may skip bearer auth.
func isPublicRoute(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return r.URL.Path == "/v1/health" || r.URL.Path == "/metrics"
}

func clientIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(clientIDHeader); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
