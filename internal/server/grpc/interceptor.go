package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const identityKey ctxKey = "identity"

// RequestIDHeaderName lets callers correlate their requests with server logs.
const RequestIDHeaderName = "x-request-id"

// publicMethods can be called without an identity token.
var publicMethods = map[string]bool{
	fullMethod("Ping"):             true,
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

func withIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the verified identity of the caller.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok && id.UID != ""
}

func uidFromContext(ctx context.Context) (string, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id.UID, nil
}

func tokenFromMetadata(md metadata.MD) string {
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		v := strings.TrimSpace(values[0])
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if publicMethods[method] {
		return ctx, nil
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		token = tokenFromMetadata(md)
	}
	if token == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Debug(ctx, "token rejected", "method", method, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return withIdentity(ctx, id), nil
}

func (s *GRPCServer) authUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *GRPCServer) authStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
}

// rateLimitKey identifies the caller: the uid when known, else the peer.
func rateLimitKey(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return "uid:" + id.UID
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "addr:" + p.Addr.String()
	}
	return ""
}

func (s *GRPCServer) rateLimitUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if s.limiter != nil && !s.limiter.Allow(rateLimitKey(ctx)) {
		return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return handler(ctx, req)
}

func (s *GRPCServer) rateLimitStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	if s.limiter != nil && !s.limiter.Allow(rateLimitKey(ss.Context())) {
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	}
	return handler(srv, ss)
}

func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(RequestIDHeaderName); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return uuid.NewString()
}

func (s *GRPCServer) loggingUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	start := time.Now()
	ctx = logging.WithRequestID(ctx, requestID(ctx))

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(ctx, "panic recovered", "method", info.FullMethod, "panic", rec)
			err = status.Error(codes.Internal, "internal error")
		}
		s.logger.Info(ctx, "request completed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
	}()

	return handler(ctx, req)
}

func (s *GRPCServer) loggingStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
	start := time.Now()
	ctx := logging.WithRequestID(ss.Context(), requestID(ss.Context()))

	s.logger.Info(ctx, "stream started", "method", info.FullMethod)
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(ctx, "panic recovered", "method", info.FullMethod, "panic", rec)
			err = status.Error(codes.Internal, "internal error")
		}
		s.logger.Info(ctx, "stream completed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
	}()

	return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
}

// contextStream overrides the context of a server stream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *contextStream) Context() context.Context {
	return w.ctx
}
