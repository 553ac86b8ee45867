package grpc

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) SignIn(ctx context.Context, _ *Empty) (*SignInResponse, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthenticated")
	}

	u, err := s.users.SignIn(ctx, id)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Signed in", "uid", u.ID)
	return &SignInResponse{
		User:                     u,
		HeartbeatIntervalSeconds: int64(s.presence.HeartbeatInterval().Seconds()),
	}, nil
}

func (s *GRPCServer) GetUser(ctx context.Context, req *UserRequest) (*UserResponse, error) {
	if _, err := uidFromContext(ctx); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UserResponse{User: u}, nil
}

func (s *GRPCServer) FindUser(ctx context.Context, req *FindUserRequest) (*UserResponse, error) {
	if _, err := uidFromContext(ctx); err != nil {
		return nil, err
	}
	u, err := s.users.FindByEmailOrUsername(ctx, req.Term)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UserResponse{User: u}, nil
}

func (s *GRPCServer) SearchUsers(ctx context.Context, req *SearchUsersRequest) (*UsersResponse, error) {
	if _, err := uidFromContext(ctx); err != nil {
		return nil, err
	}
	users, err := s.users.Search(ctx, req.Prefix, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UsersResponse{Users: users}, nil
}

func (s *GRPCServer) SendFriendRequest(ctx context.Context, req *UserRequest) (*FriendshipResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.SendRequest(ctx, uid, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &FriendshipResponse{Friendship: f}, nil
}

func (s *GRPCServer) AcceptFriendRequest(ctx context.Context, req *UserRequest) (*FriendshipResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.Accept(ctx, uid, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &FriendshipResponse{Friendship: f}, nil
}

func (s *GRPCServer) RemoveFriend(ctx context.Context, req *UserRequest) (*FriendshipResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.friendships.Remove(ctx, uid, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &FriendshipResponse{Friendship: f}, nil
}

func (s *GRPCServer) ListFriends(ctx context.Context, _ *Empty) (*UsersResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	friends, err := s.friendships.ListAccepted(ctx, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UsersResponse{Users: friends}, nil
}

func (s *GRPCServer) ListPendingRequests(ctx context.Context, _ *Empty) (*PendingRequestsResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	reqs, err := s.friendships.ListPending(ctx, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &PendingRequestsResponse{Requests: reqs}, nil
}

func (s *GRPCServer) GetOrCreateConversation(ctx context.Context, req *UserRequest) (*ConversationIDResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.conversations.GetOrCreate(ctx, uid, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ConversationIDResponse{ConversationID: id}, nil
}

func (s *GRPCServer) FindConversation(ctx context.Context, req *UserRequest) (*ConversationResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.conversations.FindOneOnOne(ctx, uid, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ConversationResponse{Conversation: c}, nil
}

func (s *GRPCServer) ListConversations(ctx context.Context, _ *Empty) (*ConversationsResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.conversations.ListForUser(ctx, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ConversationsResponse{Conversations: views}, nil
}

func (s *GRPCServer) GetConversation(ctx context.Context, req *ConversationRequest) (*ConversationViewResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.conversations.Get(ctx, req.ConversationID, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ConversationViewResponse{Conversation: v}, nil
}

func (s *GRPCServer) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.messages.Append(ctx, req.ConversationID, uid, req.Text, req.Attachment)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &MessageResponse{Message: m}, nil
}

func (s *GRPCServer) ListMessages(ctx context.Context, req *ListMessagesRequest) (*MessagesResponse, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.History(ctx, req.ConversationID, uid, req.BeforeSeq, req.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &MessagesResponse{Messages: msgs}, nil
}

// SubscribeMessages streams the latest page of a conversation and then every
// new message until the client goes away or the server shuts down.
func (s *GRPCServer) SubscribeMessages(req *SubscribeRequest, stream MessageStream) error {
	ctx := stream.Context()
	uid, err := uidFromContext(ctx)
	if err != nil {
		return err
	}

	updates := make(chan services.Update, 16)
	unsubscribe, err := s.messages.Subscribe(ctx, req.ConversationID, uid, func(u services.Update) {
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return s.toStatus(ctx, err)
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return s.toStatus(ctx, ctx.Err())
		case <-s.shutdown:
			return status.Error(codes.Unavailable, "server is shutting down")
		case u := <-updates:
			if err := stream.Send(&MessageBatch{Messages: u.Messages, Initial: u.Initial}); err != nil {
				return err
			}
		}
	}
}

// UploadAttachment receives a file in chunks and stores it for the
// conversation named by the first chunk.
func (s *GRPCServer) UploadAttachment(stream UploadStream) error {
	ctx := stream.Context()
	uid, err := uidFromContext(ctx)
	if err != nil {
		return err
	}

	first, err := stream.Recv()
	if errors.Is(err, io.EOF) {
		return status.Error(codes.InvalidArgument, "empty upload")
	}
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		if len(first.Data) > 0 {
			if _, err := pw.Write(first.Data); err != nil {
				return
			}
		}
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				pw.Close()
				return
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write(chunk.Data); err != nil {
				return
			}
		}
	}()

	var size atomic.Int64
	att, err := s.attachments.Upload(ctx, first.ConversationID, uid, first.FileName, first.FileType, pr, func(n int64) {
		size.Store(n)
	})
	pr.Close()
	if err != nil {
		return s.toStatus(ctx, err)
	}

	s.logger.Info(ctx, "Attachment uploaded", "conversation_id", first.ConversationID, "size", size.Load())
	return stream.SendAndClose(&UploadResponse{Attachment: att, Size: size.Load()})
}

func (s *GRPCServer) Heartbeat(ctx context.Context, _ *Empty) (*Empty, error) {
	uid, err := uidFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.presence.Heartbeat(ctx, uid); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) GetPresence(ctx context.Context, req *UserRequest) (*PresenceResponse, error) {
	if _, err := uidFromContext(ctx); err != nil {
		return nil, err
	}
	p, err := s.presence.Status(ctx, req.UID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &PresenceResponse{Presence: p}, nil
}

func (s *GRPCServer) Ping(ctx context.Context, _ *Empty) (*PingResponse, error) {

	return &PingResponse{Status: "OK"}, nil

}
