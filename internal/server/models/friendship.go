package models

import (
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "pending"
	FriendshipAccepted FriendshipStatus = "accepted"
	FriendshipRemoved  FriendshipStatus = "removed"
)

// Friendship is the single record kept per unordered pair of users.
// User1 is always the lexicographically smaller id.
type Friendship struct {
	PairID      string           `json:"id"`
	User1       string           `json:"user1"`
	User2       string           `json:"user2"`
	RequestedBy string           `json:"requestedBy"`
	Status      FriendshipStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// CanonicalPair returns the order-independent key of a pair:
// the smaller id, an underscore, then the larger id.
func CanonicalPair(a, b string) string {
	lo, hi := orderPair(a, b)
	return lo + "_" + hi
}

func orderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func (f *Friendship) Participants() []string {
	return []string{f.User1, f.User2}
}

// Other returns the participant that is not uid.
func (f *Friendship) Other(uid string) string {
	if f.User1 == uid {
		return f.User2
	}
	return f.User1
}

// ApplyRequest computes the record after from asks to befriend to.
// cur is nil when no record exists yet. The returned value is a new
// record; cur is not modified.
//
//	absent            -> pending (requestedBy=from)
//	pending by from   -> pending, updatedAt refreshed
//	pending by to     -> accepted
//	accepted          -> ErrAlreadyFriends
//	removed           -> pending (requestedBy=from)
func ApplyRequest(cur *Friendship, from, to string, now time.Time) (*Friendship, error) {
	if from == "" || to == "" || from == to {
		return nil, common.ErrorValidation
	}

	if cur == nil {
		u1, u2 := orderPair(from, to)
		return &Friendship{
			PairID:      CanonicalPair(from, to),
			User1:       u1,
			User2:       u2,
			RequestedBy: from,
			Status:      FriendshipPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, nil
	}

	next := *cur
	next.UpdatedAt = now

	switch cur.Status {
	case FriendshipPending:
		if cur.RequestedBy != from {
			next.Status = FriendshipAccepted
		}
	case FriendshipAccepted:
		return nil, common.ErrAlreadyFriends
	case FriendshipRemoved:
		next.Status = FriendshipPending
		next.RequestedBy = from
	default:
		return nil, common.ErrInvalidTransition
	}
	return &next, nil
}

// ApplyAccept computes the record after by accepts the pending request.
// Only the recipient of a request can accept it.
func ApplyAccept(cur *Friendship, by string, now time.Time) (*Friendship, error) {
	if cur == nil {
		return nil, common.ErrorNotFound
	}
	if cur.Status != FriendshipPending {
		return nil, common.ErrInvalidTransition
	}
	if cur.RequestedBy == by {
		return nil, common.ErrSelfAccept
	}
	next := *cur
	next.Status = FriendshipAccepted
	next.UpdatedAt = now
	return &next, nil
}

// ApplyRemove moves any existing record to removed.
func ApplyRemove(cur *Friendship, now time.Time) (*Friendship, error) {
	if cur == nil {
		return nil, common.ErrorNotFound
	}
	next := *cur
	next.Status = FriendshipRemoved
	next.UpdatedAt = now
	return &next, nil
}

// FriendRequest is an incoming pending request together with the sender.
type FriendRequest struct {
	Friendship
	From User `json:"from"`
}
