package redis

import (
	"fmt"

	"github.com/openplace/pixelfield/internal/model"
)

// Key prefix for all canvas-related data
const keyPrefix = "pxfield"

// actorKey returns the Redis key for an Actor
func actorKey(id model.ActorID) string {
	return fmt.Sprintf("%s:actor:%s", keyPrefix, id)
}

// nameIndexKey returns the Redis key for the display_name -> actor_id index
func nameIndexKey(displayName string) string {
	return fmt.Sprintf("%s:idx:name:%s", keyPrefix, displayName)
}

// adminKey returns the Redis key for an Admin
func adminKey(displayName string) string {
	return fmt.Sprintf("%s:admin:%s", keyPrefix, displayName)
}

// pixelsKey returns the Redis key of the HASH holding cell values,
// one field per "x:y" coordinate
func pixelsKey() string {
	return fmt.Sprintf("%s:pixels", keyPrefix)
}

// pixelTimesKey returns the Redis key of the HASH holding cell write times
// as unix nanoseconds, kept separate so the compare-and-set script can
// compare without decoding cell JSON
func pixelTimesKey() string {
	return fmt.Sprintf("%s:pixel_times", keyPrefix)
}

// lastWritesKey returns the Redis key of the HASH holding per-actor last
// accepted write times as unix nanoseconds
func lastWritesKey() string {
	return fmt.Sprintf("%s:last_writes", keyPrefix)
}

// cellField returns the hash field for a coordinate
func cellField(x, y int) string {
	return fmt.Sprintf("%d:%d", x, y)
}
