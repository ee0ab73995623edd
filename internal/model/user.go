// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// The email address is the identity: it is the primary key of the users
// table, the JWT subject, and the prefix of the user's conversation
// directory. Name is the display name used to personalise assistant replies.
//
// PasswordHash holds the full bcrypt output (salt and cost embedded), so no
// separate salt column is needed. It is never serialised to JSON.
type User struct {
	Email        string    `json:"email"     db:"email"`
	Name         string    `json:"name"      db:"name"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
