package model

import "time"

// EraseColor is painted by administrator pixel writes that carry no color
const EraseColor = "#FFFFFF"

// Position is a single grid coordinate
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is one addressable grid position. At most one cell exists per
// coordinate; it holds the value of the write with the greatest WriteTime
// ever submitted for that coordinate.
type Cell struct {
	X         int
	Y         int
	Color     string
	Owner     ActorID
	WriteTime time.Time
}

// Selection is an ephemeral cursor position shown to other participants.
// Keyed by display name, never persisted.
type Selection struct {
	Nickname string
	Position Position
}
