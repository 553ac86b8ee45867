package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "gophchat.ChatService"

// ChatServiceServer is the server API of ChatService.
type ChatServiceServer interface {
	SignIn(context.Context, *Empty) (*SignInResponse, error)
	GetUser(context.Context, *UserRequest) (*UserResponse, error)
	FindUser(context.Context, *FindUserRequest) (*UserResponse, error)
	SearchUsers(context.Context, *SearchUsersRequest) (*UsersResponse, error)

	SendFriendRequest(context.Context, *UserRequest) (*FriendshipResponse, error)
	AcceptFriendRequest(context.Context, *UserRequest) (*FriendshipResponse, error)
	RemoveFriend(context.Context, *UserRequest) (*FriendshipResponse, error)
	ListFriends(context.Context, *Empty) (*UsersResponse, error)
	ListPendingRequests(context.Context, *Empty) (*PendingRequestsResponse, error)

	GetOrCreateConversation(context.Context, *UserRequest) (*ConversationIDResponse, error)
	FindConversation(context.Context, *UserRequest) (*ConversationResponse, error)
	ListConversations(context.Context, *Empty) (*ConversationsResponse, error)
	GetConversation(context.Context, *ConversationRequest) (*ConversationViewResponse, error)

	SendMessage(context.Context, *SendMessageRequest) (*MessageResponse, error)
	ListMessages(context.Context, *ListMessagesRequest) (*MessagesResponse, error)
	SubscribeMessages(*SubscribeRequest, MessageStream) error
	UploadAttachment(UploadStream) error

	Heartbeat(context.Context, *Empty) (*Empty, error)
	GetPresence(context.Context, *UserRequest) (*PresenceResponse, error)
	Ping(context.Context, *Empty) (*PingResponse, error)
}

// MessageStream is the server side of SubscribeMessages.
type MessageStream interface {
	Send(*MessageBatch) error
	grpc.ServerStream
}

type messageStream struct {
	grpc.ServerStream
}

func (x *messageStream) Send(m *MessageBatch) error {
	return x.ServerStream.SendMsg(m)
}

// UploadStream is the server side of UploadAttachment.
type UploadStream interface {
	Recv() (*UploadChunk, error)
	SendAndClose(*UploadResponse) error
	grpc.ServerStream
}

type uploadStream struct {
	grpc.ServerStream
}

func (x *uploadStream) Recv() (*UploadChunk, error) {
	m := new(UploadChunk)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (x *uploadStream) SendAndClose(m *UploadResponse) error {
	return x.ServerStream.SendMsg(m)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ChatServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	method := fullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ChatServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ChatServiceServer), ctx, req.(*Req))
			})
		},
	}
}

func subscribeMessagesHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ChatServiceServer).SubscribeMessages(in, &messageStream{stream})
}

func uploadAttachmentHandler(srv any, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).UploadAttachment(&uploadStream{stream})
}

// ChatServiceDesc describes ChatService for grpc.Server.RegisterService.
var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignIn", ChatServiceServer.SignIn),
		unary("GetUser", ChatServiceServer.GetUser),
		unary("FindUser", ChatServiceServer.FindUser),
		unary("SearchUsers", ChatServiceServer.SearchUsers),
		unary("SendFriendRequest", ChatServiceServer.SendFriendRequest),
		unary("AcceptFriendRequest", ChatServiceServer.AcceptFriendRequest),
		unary("RemoveFriend", ChatServiceServer.RemoveFriend),
		unary("ListFriends", ChatServiceServer.ListFriends),
		unary("ListPendingRequests", ChatServiceServer.ListPendingRequests),
		unary("GetOrCreateConversation", ChatServiceServer.GetOrCreateConversation),
		unary("FindConversation", ChatServiceServer.FindConversation),
		unary("ListConversations", ChatServiceServer.ListConversations),
		unary("GetConversation", ChatServiceServer.GetConversation),
		unary("SendMessage", ChatServiceServer.SendMessage),
		unary("ListMessages", ChatServiceServer.ListMessages),
		unary("Heartbeat", ChatServiceServer.Heartbeat),
		unary("GetPresence", ChatServiceServer.GetPresence),
		unary("Ping", ChatServiceServer.Ping),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SubscribeMessages",
			Handler:       subscribeMessagesHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "UploadAttachment",
			Handler:       uploadAttachmentHandler,
			ClientStreams: true,
		},
	},
	Metadata: "gophchat/chat.json",
}

// RegisterChatServiceServer registers srv on s.
func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}
