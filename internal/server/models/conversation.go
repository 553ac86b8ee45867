package models

import (
	"time"

	"github.com/google/uuid"
)

var conversationNamespace = uuid.MustParse("6f1c4a8e-3f0b-5c7e-9a51-2d8b0e4f7a13")

// ConversationID is the deterministic id of the one-on-one conversation
// between the pair identified by pairKey.
func ConversationID(pairKey string) string {
	return uuid.NewSHA1(conversationNamespace, []byte(pairKey)).String()
}

// Conversation is a one-on-one conversation. Last* fields are the
// projection of the most recent message and are empty until one is sent.
type Conversation struct {
	ID             string     `json:"id"`
	PairKey        string     `json:"pairKey"`
	User1          string     `json:"user1"`
	User2          string     `json:"user2"`
	CreatedAt      time.Time  `json:"createdAt"`
	LastCipherText string     `json:"-"`
	LastIV         string     `json:"-"`
	LastSenderID   string     `json:"lastSenderId,omitempty"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
}

// NewConversation builds the conversation for a and b.
func NewConversation(a, b string, now time.Time) *Conversation {
	u1, u2 := orderPair(a, b)
	key := CanonicalPair(a, b)
	return &Conversation{
		ID:        ConversationID(key),
		PairKey:   key,
		User1:     u1,
		User2:     u2,
		CreatedAt: now,
	}
}

func (c *Conversation) Participants() []string {
	return []string{c.User1, c.User2}
}

func (c *Conversation) HasParticipant(uid string) bool {
	return uid != "" && (c.User1 == uid || c.User2 == uid)
}

func (c *Conversation) Other(uid string) string {
	if c.User1 == uid {
		return c.User2
	}
	return c.User1
}

// ConversationView is a conversation as seen by one participant: the other
// participant's profile and the decrypted last message.
type ConversationView struct {
	Conversation
	Friend          User   `json:"friend"`
	LastMessageText string `json:"lastMessage,omitempty"`
}
