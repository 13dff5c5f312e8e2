package gamesession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/cbodonnell/partyroom/pkg/sessions"
	"github.com/cbodonnell/partyroom/pkg/store"
)

// GameSession is the one object game modules are coded against. It tracks
// which room this client is in and who it is playing as, and funnels every
// room write through a single read-merge-write path. All remote state lives
// in the document store; local identity flags flip only after the store
// write is acknowledged.
//
// Room documents are written whole and the last writer wins. Two clients
// merging from the same stale read can clobber each other's unrelated
// fields; the backing store offers no conditional update, so this is a known
// limitation of the protocol.
type GameSession struct {
	store    store.DocumentStore
	sessions sessions.Store

	mu       sync.RWMutex
	roomCode string
	player   *rooms.Player
	isHost   bool

	listener    *listener
	handler     UpdateHandler
	chatHandler ChatHandler
}

// UpdateHandler receives the full room snapshot on every remote change,
// including this client's own writes once they round-trip.
type UpdateHandler func(room *rooms.Room)

type NewGameSessionOptions struct {
	Store    store.DocumentStore
	Sessions sessions.Store
}

// NewGameSession creates a new game session. It is idle until CreateRoom,
// JoinRoom, or RestoreSession succeeds.
func NewGameSession(opts NewGameSessionOptions) *GameSession {
	return &GameSession{
		store:    opts.Store,
		sessions: opts.Sessions,
	}
}

// SetUpdateHandler registers the callback invoked with each room snapshot.
// It must be set before listening starts.
func (g *GameSession) SetUpdateHandler(handler UpdateHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = handler
}

// CurrentPlayer returns this client's player identity, or nil when not in a
// room.
func (g *GameSession) CurrentPlayer() *rooms.Player {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.player == nil {
		return nil
	}
	copied := *g.player
	return &copied
}

// IsHost reports whether this client is the room's host.
func (g *GameSession) IsHost() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isHost
}

// RoomCode returns the code of the current room, or empty.
func (g *GameSession) RoomCode() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.roomCode
}

// CreateRoom creates a new room with this client as host and starts
// listening for updates.
func (g *GameSession) CreateRoom(ctx context.Context, hostName string) (string, error) {
	code := rooms.GenerateRoomCode()
	player := rooms.Player{
		ID:     rooms.GeneratePlayerID(),
		Name:   hostName,
		IsHost: true,
	}

	room := rooms.NewRoom(code, player, time.Now().UnixMilli())
	if err := g.store.SetRoom(ctx, room); err != nil {
		return "", fmt.Errorf("failed to create room: %v", err)
	}

	g.mu.Lock()
	g.roomCode = code
	g.player = &player
	g.isHost = true
	g.mu.Unlock()

	if err := g.StartListening(ctx); err != nil {
		log.Error("Failed to start listening after create: %v", err)
	}
	g.saveSession(ctx)

	log.Info("Created room %s as %s", code, player.ID)
	return code, nil
}

// JoinRoom adds this client to an existing room as a non-host player.
// It returns ErrRoomNotFound or ErrRoomFull on rejection; no state is
// mutated in either case.
//
// The read-modify-write here is not atomic: two clients joining within the
// same propagation window can overwrite each other's append.
func (g *GameSession) JoinRoom(ctx context.Context, code string, playerName string) error {
	room, err := g.store.GetRoom(ctx, code)
	if err != nil {
		if store.IsNotFound(err) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("failed to read room: %v", err)
	}

	if room.IsFull() {
		return ErrRoomFull
	}

	player := rooms.Player{
		ID:   rooms.GeneratePlayerID(),
		Name: playerName,
	}
	room.AddPlayer(player)

	if err := g.store.SetRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to join room: %v", err)
	}

	g.mu.Lock()
	g.roomCode = code
	g.player = &player
	g.isHost = false
	g.mu.Unlock()

	if err := g.StartListening(ctx); err != nil {
		log.Error("Failed to start listening after join: %v", err)
	}
	g.saveSession(ctx)

	log.Info("Joined room %s as %s", code, player.ID)
	return nil
}

// GetRoomData returns a point-in-time read of the current room, or nil if
// this client is not in a room or the document is gone.
func (g *GameSession) GetRoomData(ctx context.Context) (*rooms.Room, error) {
	code := g.RoomCode()
	if code == "" {
		return nil, nil
	}

	room, err := g.store.GetRoom(ctx, code)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read room: %v", err)
	}

	return room, nil
}

// UpdateRoomData reads the current room, applies the mutation, and writes
// the whole document back. The merge point is this client's fresh read;
// concurrent writers race on a last-write-wins basis.
func (g *GameSession) UpdateRoomData(ctx context.Context, apply func(room *rooms.Room)) error {
	room, err := g.GetRoomData(ctx)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrNotInRoom
	}

	apply(room)

	if err := g.store.SetRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to update room: %v", err)
	}

	return nil
}

// UpdateGameData merges the given keys into the room's game data and writes
// the room back. Existing keys not named in updates are preserved.
func (g *GameSession) UpdateGameData(ctx context.Context, updates map[string]interface{}) error {
	return g.UpdateRoomData(ctx, func(room *rooms.Room) {
		if room.GameData == nil {
			room.GameData = map[string]interface{}{}
		}
		for k, v := range updates {
			room.GameData[k] = v
		}
	})
}

// StartGame sets the room's active game and its initial game data. Host
// only; a non-host call is a silent no-op.
func (g *GameSession) StartGame(ctx context.Context, game string, initialGameData map[string]interface{}) error {
	if !g.IsHost() {
		log.Debug("Ignoring StartGame from non-host")
		return nil
	}

	if initialGameData == nil {
		initialGameData = map[string]interface{}{}
	}

	return g.UpdateRoomData(ctx, func(room *rooms.Room) {
		room.CurrentGame = game
		room.GameData = initialGameData
	})
}

// EndGame clears the active game and returns the room to the lobby. All
// pending actions are cleared first. Host only; a non-host call is a silent
// no-op.
func (g *GameSession) EndGame(ctx context.Context) error {
	if !g.IsHost() {
		log.Debug("Ignoring EndGame from non-host")
		return nil
	}

	if err := g.ClearGameActions(ctx); err != nil {
		log.Error("Failed to clear actions before ending game: %v", err)
	}

	return g.UpdateRoomData(ctx, func(room *rooms.Room) {
		room.CurrentGame = ""
		room.GameData = map[string]interface{}{}
	})
}

// LeaveRoom removes this client from the room, deleting the room if it is
// now empty and reassigning the host if the host left. The subscription is
// stopped and the stored session cleared regardless of the write outcome.
func (g *GameSession) LeaveRoom(ctx context.Context) error {
	g.mu.RLock()
	code := g.roomCode
	player := g.player
	g.mu.RUnlock()

	if code == "" || player == nil {
		return nil
	}

	room, err := g.store.GetRoom(ctx, code)
	if err != nil && !store.IsNotFound(err) {
		log.Error("Failed to read room on leave: %v", err)
	}

	if room != nil && room.RemovePlayer(player.ID) {
		if len(room.Players) == 0 {
			if err := g.store.DeleteRoom(ctx, code); err != nil {
				log.Error("Failed to delete empty room %s: %v", code, err)
			}
		} else {
			if err := g.store.SetRoom(ctx, room); err != nil {
				log.Error("Failed to write room on leave: %v", err)
			}
		}
	}

	g.StopListening()
	g.clearSession(ctx)

	g.mu.Lock()
	g.roomCode = ""
	g.player = nil
	g.isHost = false
	g.mu.Unlock()

	log.Info("Left room %s", code)
	return nil
}

// Close stops listening and releases the session's local state. The remote
// room is untouched; a stored session can still restore into it.
func (g *GameSession) Close() {
	g.StopListening()

	g.mu.Lock()
	g.roomCode = ""
	g.player = nil
	g.isHost = false
	g.mu.Unlock()
}

// RestoreSession attempts a silent rejoin from the stored session. It fails
// closed: if the room is gone or this player was removed, the session is
// cleared and false is returned. The host flag is re-derived from the live
// document, never from the stored session.
func (g *GameSession) RestoreSession(ctx context.Context) (bool, error) {
	if g.sessions == nil {
		return false, nil
	}

	session, err := g.sessions.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load session: %v", err)
	}
	if session == nil {
		return false, nil
	}

	room, err := g.store.GetRoom(ctx, session.RoomCode)
	if err != nil {
		if store.IsNotFound(err) {
			log.Info("Room %s no longer exists, clearing session", session.RoomCode)
			g.clearSession(ctx)
			return false, nil
		}
		return false, fmt.Errorf("failed to read room: %v", err)
	}

	if !room.HasPlayer(session.PlayerID) {
		log.Info("Player %s no longer in room %s, clearing session", session.PlayerID, session.RoomCode)
		g.clearSession(ctx)
		return false, nil
	}

	g.mu.Lock()
	g.roomCode = session.RoomCode
	g.player = &rooms.Player{
		ID:     session.PlayerID,
		Name:   session.PlayerName,
		IsHost: room.Host == session.PlayerID,
	}
	g.isHost = g.player.IsHost
	g.mu.Unlock()

	if err := g.StartListening(ctx); err != nil {
		log.Error("Failed to start listening after restore: %v", err)
	}

	log.Info("Restored session for %s in room %s", session.PlayerID, session.RoomCode)
	return true, nil
}

func (g *GameSession) saveSession(ctx context.Context) {
	if g.sessions == nil {
		return
	}

	g.mu.RLock()
	session := &sessions.Session{
		RoomCode:   g.roomCode,
		PlayerID:   g.player.ID,
		PlayerName: g.player.Name,
		IsHost:     g.isHost,
	}
	g.mu.RUnlock()

	if err := g.sessions.Save(ctx, session); err != nil {
		log.Error("Failed to save session: %v", err)
	}
}

func (g *GameSession) clearSession(ctx context.Context) {
	if g.sessions == nil {
		return
	}
	if err := g.sessions.Clear(ctx); err != nil {
		log.Error("Failed to clear session: %v", err)
	}
}
