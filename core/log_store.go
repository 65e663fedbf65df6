package core

import (
	"context"
	"errors"
)

var (
	// ErrUnknownRoom is returned when a room is neither cached nor known to the backend.
	ErrUnknownRoom = errors.New("unknown room")
)

// LogStore is the local cache of room logs and room records.
// The cache is best effort: losing it only costs a re-download of history.
type LogStore interface {
	// AppendMessages appends msgs to the cached log of a room, preserving their order.
	// Messages already cached under the same _seq or id are skipped.
	AppendMessages(ctx context.Context, roomKey string, msgs []Message) error

	// LoadLog returns the cached log of a room in arrival order.
	LoadLog(ctx context.Context, roomKey string) ([]Message, error)

	// SaveRoom inserts or replaces a room record.
	SaveRoom(ctx context.Context, room Room) error

	// GetRoom returns nil if the room is not cached.
	GetRoom(ctx context.Context, roomKey string) (*Room, error)

	ListRooms(ctx context.Context) ([]Room, error)

	// DeleteRoom removes a room record and its log.
	DeleteRoom(ctx context.Context, roomKey string) error

	// Reset empties the cache.
	Reset(ctx context.Context) error
}
