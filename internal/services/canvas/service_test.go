package canvas

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/openplace/pixelfield/internal/config"
	"github.com/openplace/pixelfield/internal/dependencies/mocks"
	"github.com/openplace/pixelfield/internal/model"
	"github.com/openplace/pixelfield/internal/storage/memory"
	"github.com/openplace/pixelfield/internal/testutil"
)

// captureEvents records every announced write
type captureEvents struct {
	cells     []model.Cell
	nicknames []string
}

func (e *captureEvents) PixelUpdated(cell model.Cell, nickname string) {
	e.cells = append(e.cells, cell)
	e.nicknames = append(e.nicknames, nickname)
}

type CanvasSuite struct {
	suite.Suite
	storage  *memory.Storage
	settings *config.Settings
	clock    *mocks.MockClock
	events   *captureEvents
	service  *Service
	ctx      context.Context
}

func TestCanvasSuite(t *testing.T) {
	suite.Run(t, new(CanvasSuite))
}

func (s *CanvasSuite) SetupTest() {
	s.storage = memory.New()
	s.settings = config.NewSettings(16, 16, 5*time.Minute)
	s.clock = mocks.NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.events = &captureEvents{}
	s.service = New(s.storage, s.settings, s.clock, s.events, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *CanvasSuite) TestApplyWriteStoresAndAnnounces() {
	err := s.service.ApplyWrite(s.ctx, 3, 4, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	cell, err := s.storage.GetPixel(s.ctx, 3, 4)
	s.Require().NoError(err)
	s.Equal("#FF0000", cell.Color)
	s.Equal(model.ActorID("actor-1"), cell.Owner)
	s.Equal(s.clock.Now(), cell.WriteTime)

	s.Require().Len(s.events.cells, 1)
	s.Equal("Alice", s.events.nicknames[0])
	s.Equal(3, s.events.cells[0].X)
	s.Equal(4, s.events.cells[0].Y)
}

func (s *CanvasSuite) TestApplyWriteOutOfBounds() {
	s.ErrorIs(s.service.ApplyWrite(s.ctx, -1, 0, "#FF0000", "actor-1", "Alice", false), model.ErrOutOfBounds)
	s.ErrorIs(s.service.ApplyWrite(s.ctx, 0, 16, "#FF0000", "actor-1", "Alice", false), model.ErrOutOfBounds)
	s.Empty(s.events.cells)
}

func (s *CanvasSuite) TestApplyWriteCooldown() {
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	s.clock.Advance(time.Minute)
	err = s.service.ApplyWrite(s.ctx, 1, 0, "#FF0000", "actor-1", "Alice", false)
	s.ErrorIs(err, model.ErrCooldown)

	_, err = s.storage.GetPixel(s.ctx, 1, 0)
	s.ErrorIs(err, model.ErrPixelNotFound)
}

func (s *CanvasSuite) TestApplyWriteAfterCooldownExpires() {
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	s.clock.Advance(5 * time.Minute)
	err = s.service.ApplyWrite(s.ctx, 1, 0, "#00FF00", "actor-1", "Alice", false)
	s.Require().NoError(err)
	s.Len(s.events.cells, 2)
}

func (s *CanvasSuite) TestCooldownDoesNotBlockOtherActors() {
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	s.clock.Advance(time.Second)
	err = s.service.ApplyWrite(s.ctx, 1, 0, "#00FF00", "actor-2", "Bob", false)
	s.NoError(err)
}

func (s *CanvasSuite) TestBypassSkipsCooldown() {
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "admin-1", "root", true)
	s.Require().NoError(err)

	s.clock.Advance(time.Second)
	err = s.service.ApplyWrite(s.ctx, 1, 0, "#00FF00", "admin-1", "root", true)
	s.Require().NoError(err)
	s.Len(s.events.cells, 2)
}

func (s *CanvasSuite) TestBypassDoesNotConsumeCooldown() {
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "admin-1", "root", true)
	s.Require().NoError(err)

	last, err := s.storage.GetActorLastWrite(s.ctx, "admin-1")
	s.Require().NoError(err)
	s.True(last.IsZero())
}

func (s *CanvasSuite) TestStaleWriteIsSilentlyDropped() {
	s.clock.Advance(time.Minute)
	err := s.service.ApplyWrite(s.ctx, 0, 0, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	// A second writer whose clock reading predates the stored cell loses
	// without an error, and nothing is announced for it.
	s.clock.Advance(-time.Minute)
	err = s.service.ApplyWrite(s.ctx, 0, 0, "#00FF00", "actor-2", "Bob", false)
	s.Require().NoError(err)

	cell, err := s.storage.GetPixel(s.ctx, 0, 0)
	s.Require().NoError(err)
	s.Equal("#FF0000", cell.Color)
	s.Len(s.events.cells, 1)
}

func (s *CanvasSuite) TestFieldState() {
	err := s.service.ApplyWrite(s.ctx, 2, 3, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	snapshot, err := s.service.FieldState(s.ctx)
	s.Require().NoError(err)
	s.Equal(16, snapshot.Width)
	s.Equal(16, snapshot.Height)
	s.Equal(5*time.Minute, snapshot.Cooldown)
	s.Require().Len(snapshot.Cells, 1)
	s.Equal("#FF0000", snapshot.Cells[0].Color)
}

func (s *CanvasSuite) TestPixelInfoWithOwner() {
	err := s.storage.CreateActor(s.ctx, &model.Actor{ID: "actor-1", DisplayName: "Alice"})
	s.Require().NoError(err)
	err = s.service.ApplyWrite(s.ctx, 2, 3, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	cell, owner, err := s.service.PixelInfo(s.ctx, 2, 3)
	s.Require().NoError(err)
	s.Equal("#FF0000", cell.Color)
	s.Require().NotNil(owner)
	s.Equal("Alice", owner.DisplayName)
}

func (s *CanvasSuite) TestPixelInfoUnknownOwner() {
	// Administrator writes carry an owner id with no actor record
	err := s.service.ApplyWrite(s.ctx, 2, 3, "#FF0000", "admin-1", "root", true)
	s.Require().NoError(err)

	cell, owner, err := s.service.PixelInfo(s.ctx, 2, 3)
	s.Require().NoError(err)
	s.Equal("#FF0000", cell.Color)
	s.Nil(owner)
}

func (s *CanvasSuite) TestPixelInfoEmptyCell() {
	_, _, err := s.service.PixelInfo(s.ctx, 0, 0)
	s.ErrorIs(err, model.ErrPixelNotFound)
}

func (s *CanvasSuite) TestPixelInfoOutOfBounds() {
	_, _, err := s.service.PixelInfo(s.ctx, 99, 99)
	s.ErrorIs(err, model.ErrOutOfBounds)
}

func (s *CanvasSuite) TestReset() {
	err := s.service.ApplyWrite(s.ctx, 2, 3, "#FF0000", "actor-1", "Alice", false)
	s.Require().NoError(err)

	err = s.service.Reset(s.ctx, 32, 24)
	s.Require().NoError(err)

	snapshot, err := s.service.FieldState(s.ctx)
	s.Require().NoError(err)
	s.Empty(snapshot.Cells)
	s.Equal(32, snapshot.Width)
	s.Equal(24, snapshot.Height)

	// Write history went with the field, so the painter is free again
	err = s.service.ApplyWrite(s.ctx, 20, 20, "#00FF00", "actor-1", "Alice", false)
	s.NoError(err)
}
