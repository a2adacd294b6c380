package model

import "time"

// ActorID uniquely identifies a participant across the system
type ActorID string

// Actor represents a registered canvas participant.
// Display names are globally unique; an actor keeps its id across
// reconnects and renames.
type Actor struct {
	ID          ActorID
	DisplayName string
	Banned      bool
	CreatedAt   time.Time
}

// Admin represents an administrator account.
// Admins authenticate with signed tokens issued outside the live session;
// the credential hash backs that out-of-band login.
type Admin struct {
	ID             string
	DisplayName    string
	CredentialHash string // bcrypt hash
	CreatedAt      time.Time
}
