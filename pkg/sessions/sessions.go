package sessions

import "context"

// Session is the locally persisted identity of this device: which room it
// was in and who it was playing as. It is written on every successful
// create/join, read once at startup to attempt a silent rejoin, and cleared
// on leave or failed restore. It never leaves the device.
type Session struct {
	RoomCode   string `json:"roomCode"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	// IsHost is a hint only. On restore the host flag is re-derived from
	// the live room document, never trusted from here.
	IsHost bool `json:"isHost"`
}

// Store persists a single session per device.
type Store interface {
	Close(ctx context.Context) error
	Save(ctx context.Context, session *Session) error
	// Load returns the stored session, or nil if none is stored.
	Load(ctx context.Context) (*Session, error)
	Clear(ctx context.Context) error
}
