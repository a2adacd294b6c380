package memory

import (
	"context"
	"sync"
	"time"

	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	actors     map[model.ActorID]*model.Actor
	nameIndex  map[string]model.ActorID
	admins     map[string]*model.Admin
	lastWrites map[model.ActorID]time.Time
	pixels     map[pixelKey]model.Cell
}

type pixelKey struct {
	x int
	y int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		actors:     make(map[model.ActorID]*model.Actor),
		nameIndex:  make(map[string]model.ActorID),
		admins:     make(map[string]*model.Admin),
		lastWrites: make(map[model.ActorID]time.Time),
		pixels:     make(map[pixelKey]model.Cell),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Actor operations

func (s *Storage) CreateActor(ctx context.Context, actor *model.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.nameIndex[actor.DisplayName]; taken {
		return model.ErrNameTaken
	}
	copied := *actor
	s.actors[actor.ID] = &copied
	s.nameIndex[actor.DisplayName] = actor.ID
	return nil
}

func (s *Storage) GetActor(ctx context.Context, id model.ActorID) (*model.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actor, ok := s.actors[id]
	if !ok {
		return nil, model.ErrActorNotFound
	}
	copied := *actor
	return &copied, nil
}

func (s *Storage) RenameActor(ctx context.Context, id model.ActorID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[id]
	if !ok {
		return model.ErrActorNotFound
	}
	if actor.DisplayName == displayName {
		return nil
	}
	if holder, taken := s.nameIndex[displayName]; taken && holder != id {
		return model.ErrNameTaken
	}
	delete(s.nameIndex, actor.DisplayName)
	actor.DisplayName = displayName
	s.nameIndex[displayName] = id
	return nil
}

func (s *Storage) ToggleActorBan(ctx context.Context, id model.ActorID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	actor, ok := s.actors[id]
	if !ok {
		return false, model.ErrActorNotFound
	}
	actor.Banned = !actor.Banned
	return actor.Banned, nil
}

// Write-history operations

func (s *Storage) GetActorLastWrite(ctx context.Context, id model.ActorID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastWrites[id], nil
}

func (s *Storage) SetActorLastWrite(ctx context.Context, id model.ActorID, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastWrites[id] = t
	return nil
}

// Admin operations

func (s *Storage) SaveAdmin(ctx context.Context, admin *model.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *admin
	s.admins[admin.DisplayName] = &copied
	return nil
}

func (s *Storage) GetAdminByName(ctx context.Context, displayName string) (*model.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	admin, ok := s.admins[displayName]
	if !ok {
		return nil, model.ErrAdminNotFound
	}
	copied := *admin
	return &copied, nil
}

// Pixel operations

func (s *Storage) GetPixels(ctx context.Context) ([]model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cells := make([]model.Cell, 0, len(s.pixels))
	for _, cell := range s.pixels {
		cells = append(cells, cell)
	}
	return cells, nil
}

func (s *Storage) GetPixel(ctx context.Context, x, y int) (*model.Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.pixels[pixelKey{x: x, y: y}]
	if !ok {
		return nil, model.ErrPixelNotFound
	}
	return &cell, nil
}

func (s *Storage) UpsertPixelIfNewer(ctx context.Context, cell model.Cell) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pixelKey{x: cell.X, y: cell.Y}
	existing, ok := s.pixels[key]
	if ok && !cell.WriteTime.After(existing.WriteTime) {
		return false, nil
	}
	s.pixels[key] = cell
	return true, nil
}

func (s *Storage) ResetField(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pixels = make(map[pixelKey]model.Cell)
	s.lastWrites = make(map[model.ActorID]time.Time)
	return nil
}
