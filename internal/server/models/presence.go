package models

import "time"

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Presence is the derived liveness of a user at read time.
type Presence struct {
	UserID     string     `json:"uid"`
	Online     bool       `json:"online"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}
