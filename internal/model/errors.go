package model

import "errors"

// Common errors used across the application
var (
	// Actor errors
	ErrActorNotFound = errors.New("actor not found")
	ErrNameTaken     = errors.New("display name already taken")

	// Admin errors
	ErrAdminNotFound = errors.New("admin not found")

	// Canvas errors
	ErrPixelNotFound = errors.New("no pixel at that position")
	ErrOutOfBounds   = errors.New("position is outside the field")
	ErrCooldown      = errors.New("cooldown window has not elapsed")
)
