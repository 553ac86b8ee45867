package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFriendshipService(t *testing.T, s *memStore) (*FriendshipService, sqlmock.Sqlmock) {
	db, mock := newSQLMockDB(t)
	svc := NewFriendshipService(db, &fakeRepoManager{s}, logging.Nop(), testConfig())
	svc.now = fixedClock(t0)
	return svc, mock
}

func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func TestFriendshipService_RequestThenAccept(t *testing.T) {
	ctx := context.Background()
	s := newMemStore("A1", "B1")
	svc, mock := newTestFriendshipService(t, s)
	expectTx(mock, 2)

	f, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipPending, f.Status)
	assert.Equal(t, "A1", f.RequestedBy)
	assert.Equal(t, "A1_B1", f.PairID)

	pending, err := svc.ListPending(ctx, "B1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "A1", pending[0].From.ID)

	outgoing, err := svc.ListPending(ctx, "A1")
	require.NoError(t, err)
	assert.Empty(t, outgoing)

	svc.now = fixedClock(t0.Add(time.Minute))
	f, err = svc.Accept(ctx, "B1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipAccepted, f.Status)
	assert.True(t, f.UpdatedAt.Equal(t0.Add(time.Minute)))

	ok, err := svc.AreFriends(ctx, "B1", "A1")
	require.NoError(t, err)
	assert.True(t, ok)

	friends, err := svc.ListAccepted(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "B1", friends[0].ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFriendshipService_RepeatedRequestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newMemStore("A1", "B1")
	svc, mock := newTestFriendshipService(t, s)
	expectTx(mock, 2)

	first, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)

	svc.now = fixedClock(t0.Add(time.Hour))
	second, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)

	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.RequestedBy, second.RequestedBy)
	assert.True(t, second.CreatedAt.Equal(first.CreatedAt))
	assert.True(t, second.UpdatedAt.Equal(t0.Add(time.Hour)))
	assert.Len(t, s.friendships, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFriendshipService_CrossingRequestsAccept(t *testing.T) {
	ctx := context.Background()
	s := newMemStore("A1", "B1")
	svc, mock := newTestFriendshipService(t, s)
	expectTx(mock, 2)

	_, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)
	f, err := svc.SendRequest(ctx, "B1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipAccepted, f.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFriendshipService_LostInsertRace(t *testing.T) {
	ctx := context.Background()
	s := newMemStore("A1", "B1")
	svc, mock := newTestFriendshipService(t, s)
	expectTx(mock, 1)

	// B1's request lands between our read and our insert.
	winner, err := models.ApplyRequest(nil, "B1", "A1", t0)
	require.NoError(t, err)
	s.loseInsertRace = winner

	f, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipAccepted, f.Status)
	assert.Equal(t, models.FriendshipAccepted, s.friendships["A1_B1"].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFriendshipService_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func(svc *FriendshipService) error
		run     func(svc *FriendshipService) error
		wantErr error
	}{
		{
			name:    "self request",
			run:     func(svc *FriendshipService) error { _, err := svc.SendRequest(ctx, "A1", "A1"); return err },
			wantErr: common.ErrorValidation,
		},
		{
			name:    "accept absent",
			run:     func(svc *FriendshipService) error { _, err := svc.Accept(ctx, "B1", "A1"); return err },
			wantErr: common.ErrorNotFound,
		},
		{
			name:    "accept own request",
			setup:   func(svc *FriendshipService) error { _, err := svc.SendRequest(ctx, "A1", "B1"); return err },
			run:     func(svc *FriendshipService) error { _, err := svc.Accept(ctx, "A1", "B1"); return err },
			wantErr: common.ErrSelfAccept,
		},
		{
			name:    "remove absent",
			run:     func(svc *FriendshipService) error { _, err := svc.Remove(ctx, "A1", "B1"); return err },
			wantErr: common.ErrorNotFound,
		},
		{
			name:    "request unknown user",
			run:     func(svc *FriendshipService) error { _, err := svc.SendRequest(ctx, "A1", "ghost"); return err },
			wantErr: common.ErrorNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newTestFriendshipService(t, newMemStore("A1", "B1"))
			if tt.setup != nil {
				expectTx(mock, 1)
				require.NoError(t, tt.setup(svc))
			}
			if !errors.Is(tt.wantErr, common.ErrorValidation) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			}

			err := tt.run(svc)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestFriendshipService_RemoveAndRequestAgain(t *testing.T) {
	ctx := context.Background()
	s := newMemStore("A1", "B1")
	svc, mock := newTestFriendshipService(t, s)
	expectTx(mock, 4)

	_, err := svc.SendRequest(ctx, "A1", "B1")
	require.NoError(t, err)
	_, err = svc.Accept(ctx, "B1", "A1")
	require.NoError(t, err)

	f, err := svc.Remove(ctx, "A1", "B1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipRemoved, f.Status)

	ok, err := svc.AreFriends(ctx, "A1", "B1")
	require.NoError(t, err)
	assert.False(t, ok)

	f, err = svc.SendRequest(ctx, "B1", "A1")
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipPending, f.Status)
	assert.Equal(t, "B1", f.RequestedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}
