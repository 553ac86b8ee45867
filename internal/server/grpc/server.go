// Package grpc exposes the chat services as the gophchat.ChatService gRPC
// service. Messages are JSON encoded; see CodecName.
package grpc

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/ratelimit"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

type UserService interface {
	SignIn(ctx context.Context, identity models.Identity) (*models.User, error)
	Get(ctx context.Context, uid string) (*models.User, error)
	FindByEmailOrUsername(ctx context.Context, term string) (*models.User, error)
	Search(ctx context.Context, prefix string, limit int) ([]models.User, error)
}

type FriendshipService interface {
	SendRequest(ctx context.Context, from, to string) (*models.Friendship, error)
	Accept(ctx context.Context, by, other string) (*models.Friendship, error)
	Remove(ctx context.Context, by, other string) (*models.Friendship, error)
	ListAccepted(ctx context.Context, uid string) ([]models.User, error)
	ListPending(ctx context.Context, uid string) ([]models.FriendRequest, error)
}

type ConversationService interface {
	FindOneOnOne(ctx context.Context, a, b string) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, a, b string) (string, error)
	ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error)
	Get(ctx context.Context, id, uid string) (*models.ConversationView, error)
}

type MessageService interface {
	Append(ctx context.Context, conversationID, senderID, text string, attachment *models.Attachment) (*models.Message, error)
	History(ctx context.Context, conversationID, uid string, beforeSeq int64, limit int) ([]models.Message, error)
	Subscribe(ctx context.Context, conversationID, uid string, onUpdate func(services.Update)) (services.Unsubscribe, error)
}

type PresenceService interface {
	Heartbeat(ctx context.Context, uid string) error
	Status(ctx context.Context, uid string) (*models.Presence, error)
	HeartbeatInterval() time.Duration
}

type AttachmentService interface {
	Upload(ctx context.Context, conversationID, uid, fileName, fileType string, r io.Reader, progress func(int64)) (*models.Attachment, error)
}

// Services bundles the business logic the server delegates to.
type Services struct {
	Users         UserService
	Friendships   FriendshipService
	Conversations ConversationService
	Messages      MessageService
	Presence      PresenceService
	Attachments   AttachmentService
}

type GRPCServer struct {
	address  string
	logger   logging.Logger
	verifier TokenVerifier
	limiter  ratelimit.Limiter
	health   *health.Server
	// closed when the server starts shutting down; ends open subscriptions
	shutdown chan struct{}

	users         UserService
	friendships   FriendshipService
	conversations ConversationService
	messages      MessageService
	presence      PresenceService
	attachments   AttachmentService
}

func NewGRPCServer(a string, l logging.Logger, v TokenVerifier, limiter ratelimit.Limiter, svc Services) *GRPCServer {
	return &GRPCServer{
		address:       a,
		logger:        l.With("module", "grpc_server"),
		verifier:      v,
		limiter:       limiter,
		health:        health.NewServer(),
		shutdown:      make(chan struct{}),
		users:         svc.Users,
		friendships:   svc.Friendships,
		conversations: svc.Conversations,
		messages:      svc.Messages,
		presence:      svc.Presence,
		attachments:   svc.Attachments,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingUnaryInterceptor, s.authUnaryInterceptor, s.rateLimitUnaryInterceptor),
		grpc.ChainStreamInterceptor(s.loggingStreamInterceptor, s.authStreamInterceptor, s.rateLimitStreamInterceptor),
	)

	RegisterChatServiceServer(srv, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		close(s.shutdown)
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
