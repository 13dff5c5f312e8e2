package gamesession

import (
	"context"
	"fmt"
	"time"

	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/rooms"
)

// SubmitPlayerAction records this player's submission for the given action
// type. A resubmission with the same type overwrites the previous one, so a
// player only ever has one live answer per action kind. It returns
// ErrNoActiveGame when the room is in the lobby.
func (g *GameSession) SubmitPlayerAction(ctx context.Context, actionType string, data interface{}) error {
	g.mu.RLock()
	code := g.roomCode
	player := g.player
	g.mu.RUnlock()

	if code == "" || player == nil {
		return ErrNotInRoom
	}

	room, err := g.GetRoomData(ctx)
	if err != nil {
		return err
	}
	if room == nil || room.CurrentGame == "" {
		return ErrNoActiveGame
	}

	action := &rooms.Action{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Type:       actionType,
		Data:       data,
		Timestamp:  time.Now().UnixMilli(),
	}

	if err := g.store.SetAction(ctx, code, action); err != nil {
		return fmt.Errorf("failed to submit action: %v", err)
	}

	return nil
}

// GetPlayerActions returns every player's action of the given type. Other
// types are never included. The order is store enumeration order; callers
// needing a stable view should key by player ID.
func (g *GameSession) GetPlayerActions(ctx context.Context, actionType string) ([]*rooms.Action, error) {
	code := g.RoomCode()
	if code == "" {
		return []*rooms.Action{}, nil
	}

	all, err := g.store.GetActions(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions: %v", err)
	}

	actions := make([]*rooms.Action, 0, len(all))
	for _, action := range all {
		if action.Type == actionType {
			actions = append(actions, action)
		}
	}

	return actions, nil
}

// ClearGameActions deletes the room's entire action namespace, all types and
// all players. Host only; a non-host call is a silent no-op.
func (g *GameSession) ClearGameActions(ctx context.Context) error {
	g.mu.RLock()
	code := g.roomCode
	isHost := g.isHost
	g.mu.RUnlock()

	if code == "" {
		return nil
	}
	if !isHost {
		log.Debug("Ignoring ClearGameActions from non-host")
		return nil
	}

	if err := g.store.ClearActions(ctx, code); err != nil {
		return fmt.Errorf("failed to clear actions: %v", err)
	}

	return nil
}
