package grpc

import "github.com/dmitrijs2005/gophchat/internal/server/models"

// Wire messages of ChatService. They travel as JSON.

type Empty struct{}

type SignInResponse struct {
	User                     *models.User `json:"user"`
	HeartbeatIntervalSeconds int64        `json:"heartbeatIntervalSeconds"`
}

// UserRequest names another user by uid.
type UserRequest struct {
	UID string `json:"uid"`
}

type UserResponse struct {
	User *models.User `json:"user"`
}

type FindUserRequest struct {
	Term string `json:"term"`
}

type SearchUsersRequest struct {
	Prefix string `json:"prefix"`
	Limit  int    `json:"limit,omitempty"`
}

type UsersResponse struct {
	Users []models.User `json:"users"`
}

type FriendshipResponse struct {
	Friendship *models.Friendship `json:"friendship"`
}

type PendingRequestsResponse struct {
	Requests []models.FriendRequest `json:"requests"`
}

type ConversationIDResponse struct {
	ConversationID string `json:"conversationId"`
}

// ConversationResponse carries a nil conversation when there is none.
type ConversationResponse struct {
	Conversation *models.Conversation `json:"conversation"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type ConversationViewResponse struct {
	Conversation *models.ConversationView `json:"conversation"`
}

type ConversationsResponse struct {
	Conversations []models.ConversationView `json:"conversations"`
}

type SendMessageRequest struct {
	ConversationID string             `json:"conversationId"`
	Text           string             `json:"text"`
	Attachment     *models.Attachment `json:"attachment,omitempty"`
}

type MessageResponse struct {
	Message *models.Message `json:"message"`
}

// ListMessagesRequest pages backwards; BeforeSeq 0 asks for the latest page.
type ListMessagesRequest struct {
	ConversationID string `json:"conversationId"`
	BeforeSeq      int64  `json:"beforeSeq,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

type PresenceResponse struct {
	Presence *models.Presence `json:"presence"`
}

type PingResponse struct {
	Status string `json:"status"`
}

type SubscribeRequest struct {
	ConversationID string `json:"conversationId"`
}

// MessageBatch is one delivery on a SubscribeMessages stream. The first
// batch has Initial set and holds the latest page.
type MessageBatch struct {
	Messages []models.Message `json:"messages"`
	Initial  bool             `json:"initial,omitempty"`
}

// UploadChunk is one message of an UploadAttachment stream. The first chunk
// names the conversation and the file; every chunk may carry data.
type UploadChunk struct {
	ConversationID string `json:"conversationId,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	FileType       string `json:"fileType,omitempty"`
	Data           []byte `json:"data,omitempty"`
}

type UploadResponse struct {
	Attachment *models.Attachment `json:"attachment"`
	Size       int64              `json:"size"`
}
