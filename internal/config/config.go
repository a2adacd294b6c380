package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds startup configuration read from the environment
type Env struct {
	Host string `env:"PIXELFIELD_HOST" envDefault:""`
	Port int    `env:"PIXELFIELD_PORT" envDefault:"8080"`

	// StorageType selects the storage backend ("memory" or "redis")
	StorageType string `env:"PIXELFIELD_STORAGE" envDefault:"memory"`
	RedisURL    string `env:"PIXELFIELD_REDIS_URL" envDefault:"redis://localhost:6379"`

	FieldWidth      int `env:"PIXELFIELD_WIDTH" envDefault:"64"`
	FieldHeight     int `env:"PIXELFIELD_HEIGHT" envDefault:"64"`
	CooldownSeconds int `env:"PIXELFIELD_COOLDOWN_SECONDS" envDefault:"300"`

	// TokenSecret signs and verifies administrator session tokens
	TokenSecret string `env:"PIXELFIELD_TOKEN_SECRET,required"`

	// AdminName/AdminPassword seed the administrator record at startup.
	// Leave the password empty to skip seeding.
	AdminName     string `env:"PIXELFIELD_ADMIN_NAME" envDefault:"admin"`
	AdminPassword string `env:"PIXELFIELD_ADMIN_PASSWORD"`
}

// Load parses configuration from environment variables
func Load() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if e.FieldWidth <= 0 || e.FieldHeight <= 0 {
		return Env{}, fmt.Errorf("field size must be positive, got %dx%d", e.FieldWidth, e.FieldHeight)
	}
	return e, nil
}

// Cooldown returns the configured cooldown window as a duration
func (e Env) Cooldown() time.Duration {
	return time.Duration(e.CooldownSeconds) * time.Second
}
