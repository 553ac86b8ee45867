package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/dbx"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/conversations"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/friendships"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/messages"
	"github.com/dmitrijs2005/gophchat/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.EncryptionSecret = "test-secret"
	cfg.RetryAttempts = 0
	cfg.OperationTimeout = time.Second
	return cfg
}

func testCodec(t *testing.T) *cryptox.Codec {
	t.Helper()
	km, err := cryptox.NewKeyManager("test-secret")
	require.NoError(t, err)
	c, err := cryptox.NewCodecFromManager(km)
	require.NoError(t, err)
	return c
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- in-memory store ---

type memStore struct {
	mu sync.Mutex

	users       map[string]models.User
	friendships map[string]models.Friendship
	convs       map[string]models.Conversation
	messages    []models.Message
	seq         int64

	// loseInsertRace makes the next friendship Insert report a conflict
	// after storing the given record, as if another request won.
	loseInsertRace *models.Friendship

	messageInsertErr error
	lastSearchLimit  int
}

func newMemStore(uids ...string) *memStore {
	s := &memStore{
		users:       map[string]models.User{},
		friendships: map[string]models.Friendship{},
		convs:       map[string]models.Conversation{},
	}
	for _, id := range uids {
		s.users[id] = models.User{ID: id, Username: strings.ToLower(id), Status: models.StatusOffline, CreatedAt: t0, UpdatedAt: t0}
	}
	return s
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return memUsers{m.s} }
func (m *fakeRepoManager) Friendships(dbx.DBTX) friendships.Repository  { return memFriendships{m.s} }
func (m *fakeRepoManager) Conversations(dbx.DBTX) conversations.Repository {
	return memConversations{m.s}
}
func (m *fakeRepoManager) Messages(dbx.DBTX) messages.Repository { return memMessages{m.s} }

type memUsers struct{ s *memStore }

func merge(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (r memUsers) Upsert(ctx context.Context, id models.Identity, now time.Time) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.users {
		if other.ID != id.UID && id.Username != "" && other.Username == id.Username {
			return nil, common.ErrAlreadyExists
		}
	}
	u, ok := r.s.users[id.UID]
	if !ok {
		u = models.User{ID: id.UID, Status: models.StatusOffline, CreatedAt: now}
	}
	merge(&u.Email, id.Email)
	merge(&u.Username, id.Username)
	merge(&u.DisplayName, id.DisplayName)
	merge(&u.PhotoURL, id.PhotoURL)
	u.UpdatedAt = now
	r.s.users[id.UID] = u
	return &u, nil
}

func (r memUsers) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email != "" && strings.EqualFold(u.Email, email) })
}

func (r memUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Username != "" && strings.EqualFold(u.Username, username) })
}

func (r memUsers) SearchPrefix(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lastSearchLimit = limit
	p := strings.ToLower(prefix)
	var out []models.User
	for _, u := range r.s.users {
		if strings.HasPrefix(strings.ToLower(u.Username), p) || strings.HasPrefix(strings.ToLower(u.Email), p) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memUsers) Touch(ctx context.Context, id string, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.Status = models.StatusOnline
	u.LastActive = &now
	r.s.users[id] = u
	return nil
}

type memFriendships struct{ s *memStore }

func (r memFriendships) Get(ctx context.Context, pairID string) (*models.Friendship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.friendships[pairID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r memFriendships) GetForUpdate(ctx context.Context, pairID string) (*models.Friendship, error) {
	return r.Get(ctx, pairID)
}

func (r memFriendships) Insert(ctx context.Context, f *models.Friendship) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if w := r.s.loseInsertRace; w != nil {
		r.s.loseInsertRace = nil
		r.s.friendships[w.PairID] = *w
		return false, nil
	}
	if _, ok := r.s.friendships[f.PairID]; ok {
		return false, nil
	}
	for _, uid := range f.Participants() {
		if _, ok := r.s.users[uid]; !ok {
			return false, common.ErrorNotFound
		}
	}
	r.s.friendships[f.PairID] = *f
	return true, nil
}

func (r memFriendships) Update(ctx context.Context, f *models.Friendship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.friendships[f.PairID]; !ok {
		return common.ErrorNotFound
	}
	r.s.friendships[f.PairID] = *f
	return nil
}

func (r memFriendships) ListAccepted(ctx context.Context, uid string) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, f := range r.s.friendships {
		if f.Status == models.FriendshipAccepted && (f.User1 == uid || f.User2 == uid) {
			out = append(out, r.s.users[f.Other(uid)])
		}
	}
	return out, nil
}

func (r memFriendships) ListIncomingPending(ctx context.Context, uid string) ([]models.FriendRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.FriendRequest
	for _, f := range r.s.friendships {
		if f.Status == models.FriendshipPending && f.RequestedBy != uid && (f.User1 == uid || f.User2 == uid) {
			out = append(out, models.FriendRequest{Friendship: f, From: r.s.users[f.RequestedBy]})
		}
	}
	return out, nil
}

type memConversations struct{ s *memStore }

func (r memConversations) InsertIfAbsent(ctx context.Context, c *models.Conversation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.convs {
		if existing.PairKey == c.PairKey {
			return nil
		}
	}
	r.s.convs[c.ID] = *c
	return nil
}

func (r memConversations) GetByPairKey(ctx context.Context, pairKey string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.convs {
		if c.PairKey == pairKey {
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memConversations) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &c, nil
}

func (r memConversations) GetByIDForUpdate(ctx context.Context, id string) (*models.Conversation, error) {
	return r.GetByID(ctx, id)
}

func (r memConversations) UpdateLastMessage(ctx context.Context, id, cipherText, iv, senderID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.convs[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.LastCipherText, c.LastIV, c.LastSenderID, c.LastMessageAt = cipherText, iv, senderID, &at
	r.s.convs[id] = c
	return nil
}

func (r memConversations) ListForUser(ctx context.Context, uid string) ([]models.ConversationView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ConversationView
	for _, c := range r.s.convs {
		if c.HasParticipant(uid) {
			out = append(out, models.ConversationView{Conversation: c, Friend: r.s.users[c.Other(uid)]})
		}
	}
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Insert(ctx context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.messageInsertErr != nil {
		return r.s.messageInsertErr
	}
	r.s.seq++
	m.Seq = r.s.seq
	m.CreatedAt = t0.Add(time.Duration(r.s.seq) * time.Second)
	stored := cloneMessage(*m)
	stored.Text = ""
	r.s.messages = append(r.s.messages, stored)
	return nil
}

// cloneMessage copies m so callers cannot mutate what the store holds.
func cloneMessage(m models.Message) models.Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

func (r memMessages) byConversation(id string) []models.Message {
	var out []models.Message
	for _, m := range r.s.messages {
		if m.ConversationID == id {
			out = append(out, cloneMessage(m))
		}
	}
	return out
}

func (r memMessages) ListLatest(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.byConversation(conversationID)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]models.Message{}, all...), nil
}

func (r memMessages) ListAfter(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Message{}
	for _, m := range r.byConversation(conversationID) {
		if m.Seq > afterSeq && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMessages) ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var older []models.Message
	for _, m := range r.byConversation(conversationID) {
		if m.Seq < beforeSeq {
			older = append(older, m)
		}
	}
	if len(older) > limit {
		older = older[len(older)-limit:]
	}
	return append([]models.Message{}, older...), nil
}

// stored returns a copy of everything persisted for conversationID.
func (s *memStore) stored(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memMessages{s}.byConversation(conversationID)
}

// befriend stores an accepted friendship between a and b.
func (s *memStore) befriend(a, b string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, _ := models.ApplyRequest(nil, a, b, t0)
	f.Status = models.FriendshipAccepted
	s.friendships[f.PairID] = *f
}

// conversation stores an accepted friendship and a conversation between a
// and b and returns the conversation id.
func (s *memStore) conversation(a, b string) string {
	s.befriend(a, b)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.NewConversation(a, b, t0)
	s.convs[c.ID] = *c
	return c.ID
}
