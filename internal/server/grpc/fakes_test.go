package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeVerifier struct {
	tokens map[string]models.Identity
}

func (f *fakeVerifier) Verify(token string) (models.Identity, error) {
	id, ok := f.tokens[token]
	if !ok {
		return models.Identity{}, common.ErrInvalidToken
	}
	return id, nil
}

type fakeUsers struct {
	signedIn []models.Identity
	user     *models.User
	err      error
}

func (f *fakeUsers) SignIn(ctx context.Context, id models.Identity) (*models.User, error) {
	f.signedIn = append(f.signedIn, id)
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: id.UID, Email: id.Email, Status: models.StatusOffline, CreatedAt: t0, UpdatedAt: t0}, nil
}

func (f *fakeUsers) Get(ctx context.Context, uid string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.User{ID: uid}, nil
}

func (f *fakeUsers) FindByEmailOrUsername(ctx context.Context, term string) (*models.User, error) {
	return f.user, f.err
}

func (f *fakeUsers) Search(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.User{{ID: prefix + "-1"}}, nil
}

type fakeFriendships struct {
	calls []string
	err   error
}

func (f *fakeFriendships) record(op, a, b string, status models.FriendshipStatus) (*models.Friendship, error) {
	f.calls = append(f.calls, op+":"+a+">"+b)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Friendship{PairID: models.CanonicalPair(a, b), RequestedBy: a, Status: status}, nil
}

func (f *fakeFriendships) SendRequest(ctx context.Context, from, to string) (*models.Friendship, error) {
	return f.record("request", from, to, models.FriendshipPending)
}

func (f *fakeFriendships) Accept(ctx context.Context, by, other string) (*models.Friendship, error) {
	return f.record("accept", by, other, models.FriendshipAccepted)
}

func (f *fakeFriendships) Remove(ctx context.Context, by, other string) (*models.Friendship, error) {
	return f.record("remove", by, other, models.FriendshipRemoved)
}

func (f *fakeFriendships) ListAccepted(ctx context.Context, uid string) ([]models.User, error) {
	return []models.User{{ID: "B1"}}, f.err
}

func (f *fakeFriendships) ListPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	return []models.FriendRequest{{From: models.User{ID: "C1"}}}, f.err
}

type fakeConversations struct {
	err error
}

func (f *fakeConversations) FindOneOnOne(ctx context.Context, a, b string) (*models.Conversation, error) {
	return nil, f.err
}

func (f *fakeConversations) GetOrCreate(ctx context.Context, a, b string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return models.ConversationID(models.CanonicalPair(a, b)), nil
}

func (f *fakeConversations) ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error) {
	return []models.ConversationView{}, f.err
}

func (f *fakeConversations) Get(ctx context.Context, id, uid string) (*models.ConversationView, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.ConversationView{Conversation: models.Conversation{ID: id}}, nil
}

// fakeMessages keeps appended messages per conversation and pushes every
// append to live subscribers.
type fakeMessages struct {
	mu       sync.Mutex
	byConv   map[string][]models.Message
	subs     map[string][]func(services.Update)
	err      error
	unsubbed chan struct{}
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{
		byConv:   map[string][]models.Message{},
		subs:     map[string][]func(services.Update){},
		unsubbed: make(chan struct{}, 8),
	}
}

func (f *fakeMessages) Append(ctx context.Context, conversationID, senderID, text string, att *models.Attachment) (*models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	m := models.Message{
		ID:             fmt.Sprintf("m%d", len(f.byConv[conversationID])+1),
		Seq:            int64(len(f.byConv[conversationID]) + 1),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Attachment:     att,
		CreatedAt:      t0,
	}
	f.byConv[conversationID] = append(f.byConv[conversationID], m)
	subs := append([]func(services.Update){}, f.subs[conversationID]...)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(services.Update{Messages: []models.Message{m}})
	}
	return &m, nil
}

func (f *fakeMessages) History(ctx context.Context, conversationID, uid string, beforeSeq int64, limit int) ([]models.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message{}, f.byConv[conversationID]...), nil
}

func (f *fakeMessages) Subscribe(ctx context.Context, conversationID, uid string, onUpdate func(services.Update)) (services.Unsubscribe, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	initial := append([]models.Message{}, f.byConv[conversationID]...)
	f.subs[conversationID] = append(f.subs[conversationID], onUpdate)
	f.mu.Unlock()

	onUpdate(services.Update{Messages: initial, Initial: true})

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.subs[conversationID] = nil
			f.mu.Unlock()
			f.unsubbed <- struct{}{}
		})
	}, nil
}

type fakePresence struct {
	beats []string
	err   error
}

func (f *fakePresence) Heartbeat(ctx context.Context, uid string) error {
	f.beats = append(f.beats, uid)
	return f.err
}

func (f *fakePresence) Status(ctx context.Context, uid string) (*models.Presence, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Presence{UserID: uid, Online: true}, nil
}

func (f *fakePresence) HeartbeatInterval() time.Duration {
	return time.Minute
}

type fakeAttachments struct {
	got []byte
	err error
}

func (f *fakeAttachments) Upload(ctx context.Context, conversationID, uid, fileName, fileType string, r io.Reader, progress func(int64)) (*models.Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.got = data
	progress(int64(len(data)))
	return &models.Attachment{FileURL: "https://files/" + conversationID + "/" + fileName, FileName: fileName, FileType: fileType}, nil
}

type denyAll struct{}

func (denyAll) Allow(string) bool { return false }

type fixture struct {
	srv           *GRPCServer
	users         *fakeUsers
	friendships   *fakeFriendships
	conversations *fakeConversations
	messages      *fakeMessages
	presence      *fakePresence
	attachments   *fakeAttachments
}

func newFixture() *fixture {
	f := &fixture{
		users:         &fakeUsers{},
		friendships:   &fakeFriendships{},
		conversations: &fakeConversations{},
		messages:      newFakeMessages(),
		presence:      &fakePresence{},
		attachments:   &fakeAttachments{},
	}
	verifier := &fakeVerifier{tokens: map[string]models.Identity{
		"token-a1": {UID: "A1", Email: "a@x.io"},
		"token-b1": {UID: "B1", Email: "b@x.io"},
	}}
	f.srv = NewGRPCServer("127.0.0.1:0", logging.Nop(), verifier, nil, Services{
		Users:         f.users,
		Friendships:   f.friendships,
		Conversations: f.conversations,
		Messages:      f.messages,
		Presence:      f.presence,
		Attachments:   f.attachments,
	})
	return f
}

func asA1(ctx context.Context) context.Context {
	return withIdentity(ctx, models.Identity{UID: "A1", Email: "a@x.io"})
}

var errBoom = errors.New("boom")
