package canvas

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openplace/pixelfield/internal/config"
	"github.com/openplace/pixelfield/internal/dependencies/clock"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/storage"
)

// Events receives announcements of accepted canvas mutations. Broadcasting
// is a post-condition of a successful write, not part of the write itself,
// so the sink is pluggable and the two are testable independently.
type Events interface {
	PixelUpdated(cell model.Cell, nickname string)
}

// NopEvents discards all announcements
type NopEvents struct{}

func (NopEvents) PixelUpdated(model.Cell, string) {}

// Snapshot is the canvas half of a full field resync
type Snapshot struct {
	Width    int
	Height   int
	Cooldown time.Duration
	Cells    []model.Cell
}

// Service validates and applies cell writes under the cooldown and
// last-write-wins rules
type Service struct {
	storage  storage.Storage
	settings *config.Settings
	clock    clock.Clock
	events   Events
	logger   *slog.Logger
}

// New creates a new canvas Service
func New(storage storage.Storage, settings *config.Settings, clk clock.Clock, events Events, logger *slog.Logger) *Service {
	if events == nil {
		events = NopEvents{}
	}
	return &Service{
		storage:  storage,
		settings: settings,
		clock:    clk,
		events:   events,
		logger:   logger.With(slog.String("component", "canvas")),
	}
}

// ApplyWrite validates and applies one cell write for the given actor.
// The write time is assigned here from the service clock; clients never
// supply it. Administrator writes pass bypassCooldown and neither consult
// nor consume the actor's cooldown.
//
// A write superseded by a concurrent later write is not an error: the cell
// already reflects the winner and the winning write was broadcast by its
// own caller.
func (s *Service) ApplyWrite(ctx context.Context, x, y int, color string, actor model.ActorID, nickname string, bypassCooldown bool) error {
	if !s.settings.Contains(x, y) {
		return model.ErrOutOfBounds
	}

	now := s.clock.Now()

	if !bypassCooldown {
		last, err := s.storage.GetActorLastWrite(ctx, actor)
		if err != nil {
			return err
		}
		if !last.IsZero() && now.Sub(last) < s.settings.Cooldown() {
			return model.ErrCooldown
		}
	}

	cell := model.Cell{X: x, Y: y, Color: color, Owner: actor, WriteTime: now}
	applied, err := s.storage.UpsertPixelIfNewer(ctx, cell)
	if err != nil {
		return err
	}

	if !bypassCooldown {
		if err := s.storage.SetActorLastWrite(ctx, actor, now); err != nil {
			return err
		}
	}

	if applied {
		s.events.PixelUpdated(cell, nickname)
	} else {
		s.logger.Debug("write superseded by a newer cell value",
			slog.Int("x", x), slog.Int("y", y),
			slog.String("actor_id", string(actor)))
	}
	return nil
}

// FieldState returns every cell plus the current field dimensions and
// cooldown window. The caller merges in the live selection overlay, which
// belongs to the connection registry.
func (s *Service) FieldState(ctx context.Context) (*Snapshot, error) {
	cells, err := s.storage.GetPixels(ctx)
	if err != nil {
		return nil, err
	}
	width, height := s.settings.FieldSize()
	return &Snapshot{
		Width:    width,
		Height:   height,
		Cooldown: s.settings.Cooldown(),
		Cells:    cells,
	}, nil
}

// PixelInfo returns the cell at a coordinate and, when the owner is a known
// actor, the owning actor. A nil actor means the owner record is gone or
// the cell was painted by an administrator.
func (s *Service) PixelInfo(ctx context.Context, x, y int) (*model.Cell, *model.Actor, error) {
	if !s.settings.Contains(x, y) {
		return nil, nil, model.ErrOutOfBounds
	}

	cell, err := s.storage.GetPixel(ctx, x, y)
	if err != nil {
		return nil, nil, err
	}

	owner, err := s.storage.GetActor(ctx, cell.Owner)
	if err != nil {
		if errors.Is(err, model.ErrActorNotFound) {
			return cell, nil, nil
		}
		return nil, nil, err
	}
	return cell, owner, nil
}

// Reset clears all cells and write history and applies the new field
// dimensions. The caller is responsible for clearing the selection overlay
// and disconnecting clients so they resynchronize against the new field.
func (s *Service) Reset(ctx context.Context, width, height int) error {
	if err := s.storage.ResetField(ctx); err != nil {
		return err
	}
	s.settings.SetFieldSize(width, height)
	s.logger.Info("field reset", slog.Int("width", width), slog.Int("height", height))
	return nil
}
