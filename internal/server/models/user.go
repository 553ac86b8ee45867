// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is the directory record kept for every identity that signed in.
type User struct {
	ID          string     `json:"uid"`
	Email       string     `json:"email,omitempty"`
	Username    string     `json:"username,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	PhotoURL    string     `json:"photoURL,omitempty"`
	Status      string     `json:"status"`
	LastActive  *time.Time `json:"lastActive,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Identity carries the claims of a verified identity token. Empty fields
// mean the claim was absent and must not overwrite stored values.
type Identity struct {
	UID         string
	Email       string
	Username    string
	DisplayName string
	PhotoURL    string
}
