// Package common defines shared constants and sentinel errors used across
// the gophchat layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound    = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed identity token).
	ErrInvalidToken = errors.New("invalid token")

	// Configuration errors.
	ErrMissingSecret = errors.New("secret is not configured")

	// Conversation and message errors.
	ErrNotParticipant = errors.New("user is not a participant of the conversation")
	ErrNotFriends     = errors.New("users are not friends")

	// Friendship state machine errors.
	ErrInvalidTransition = errors.New("invalid friendship transition")
	ErrSelfAccept        = errors.New("requester cannot accept own friend request")
	ErrAlreadyFriends    = errors.New("users are already friends")
)
