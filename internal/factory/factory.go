package factory

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/openplace/pixelfield/internal/config"
	"github.com/openplace/pixelfield/internal/dependencies/clock"
	"github.com/openplace/pixelfield/internal/metrics"
	"github.com/openplace/pixelfield/internal/services/canvas"
	"github.com/openplace/pixelfield/internal/services/session"
	"github.com/openplace/pixelfield/internal/storage"
	"github.com/openplace/pixelfield/internal/storage/memory"
	redisstorage "github.com/openplace/pixelfield/internal/storage/redis"
	"github.com/openplace/pixelfield/internal/ws"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	Storage  storage.Storage
	Clock    clock.Clock
	Settings *config.Settings
	Metrics  *metrics.Metrics

	SessionService *session.Service
	CanvasService  *canvas.Service
	Registry       *ws.Registry
	Router         *ws.Router
	WSServer       *ws.Server
}

// Config holds configuration for the application factory
type Config struct {
	// FieldWidth/FieldHeight are the initial grid dimensions
	FieldWidth  int
	FieldHeight int
	// CooldownSeconds is the initial cooldown window
	CooldownSeconds int
	// TokenSecret signs and verifies administrator tokens
	TokenSecret []byte
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	var store storage.Storage
	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	return NewWithDependencies(store, clock.New(), cfg, logger), nil
}

// NewWithDependencies wires an App around the given storage and clock
// (useful for testing)
func NewWithDependencies(store storage.Storage, clk clock.Clock, cfg Config, logger *slog.Logger) *App {
	settings := config.NewSettings(cfg.FieldWidth, cfg.FieldHeight, secondsToDuration(cfg.CooldownSeconds))
	m := metrics.New()

	registry := ws.NewRegistry(logger, m)
	canvasService := canvas.New(store, settings, clk, registry, logger)
	sessionService := session.New(store, clk, cfg.TokenSecret, logger)
	router := ws.NewRouter(registry, canvasService, store, settings, logger, m)
	wsServer := ws.NewServer(sessionService, registry, router, logger)

	return &App{
		Storage:        store,
		Clock:          clk,
		Settings:       settings,
		Metrics:        m,
		SessionService: sessionService,
		CanvasService:  canvasService,
		Registry:       registry,
		Router:         router,
		WSServer:       wsServer,
	}
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
