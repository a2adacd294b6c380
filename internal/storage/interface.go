package storage

import (
	"context"
	"time"

	"github.com/openplace/pixelfield/internal/model"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Actor operations. CreateActor and RenameActor enforce display name
	// uniqueness and return model.ErrNameTaken on collision.
	CreateActor(ctx context.Context, actor *model.Actor) error
	GetActor(ctx context.Context, id model.ActorID) (*model.Actor, error)
	RenameActor(ctx context.Context, id model.ActorID, displayName string) error
	ToggleActorBan(ctx context.Context, id model.ActorID) (banned bool, err error)

	// Write-history operations backing the cooldown rule. GetActorLastWrite
	// returns the zero time for an actor that has never painted.
	GetActorLastWrite(ctx context.Context, id model.ActorID) (time.Time, error)
	SetActorLastWrite(ctx context.Context, id model.ActorID, t time.Time) error

	// Admin operations
	SaveAdmin(ctx context.Context, admin *model.Admin) error
	GetAdminByName(ctx context.Context, displayName string) (*model.Admin, error)

	// Pixel operations. UpsertPixelIfNewer applies the cell only when its
	// WriteTime is strictly greater than the stored one (existing value wins
	// ties) and must be atomic with respect to concurrent writers of the
	// same coordinate.
	GetPixels(ctx context.Context) ([]model.Cell, error)
	GetPixel(ctx context.Context, x, y int) (*model.Cell, error)
	UpsertPixelIfNewer(ctx context.Context, cell model.Cell) (applied bool, err error)

	// ResetField clears all pixels and every actor's write history
	ResetField(ctx context.Context) error
}
