package config

import (
	"sync"
	"time"
)

// Settings holds the runtime-mutable game configuration: the cooldown
// window and the field dimensions. Administrators change both at runtime,
// so every read goes through the lock and takes effect immediately for
// subsequent writes.
type Settings struct {
	mu       sync.RWMutex
	cooldown time.Duration
	width    int
	height   int
}

// NewSettings creates Settings with the given initial values
func NewSettings(width, height int, cooldown time.Duration) *Settings {
	return &Settings{
		cooldown: cooldown,
		width:    width,
		height:   height,
	}
}

// Cooldown returns the current cooldown window
func (s *Settings) Cooldown() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldown
}

// SetCooldown updates the cooldown window
func (s *Settings) SetCooldown(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldown = d
}

// FieldSize returns the current field dimensions
func (s *Settings) FieldSize() (width, height int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// SetFieldSize updates the field dimensions
func (s *Settings) SetFieldSize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = width
	s.height = height
}

// Contains reports whether the position is inside the field
func (s *Settings) Contains(x, y int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return x >= 0 && x < s.width && y >= 0 && y < s.height
}
