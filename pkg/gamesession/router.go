package gamesession

import "github.com/cbodonnell/partyroom/pkg/rooms"

// RouteEventType classifies what a room snapshot means for screen routing.
type RouteEventType string

const (
	// RouteGameStarted fires once when the active game changes to a new
	// non-empty value: route to that game's view.
	RouteGameStarted RouteEventType = "game_started"
	// RouteGameEnded fires once when the active game clears: route back to
	// the lobby.
	RouteGameEnded RouteEventType = "game_ended"
	// RouteRoomChanged fires for every other update: refresh the current
	// view's data without swapping views.
	RouteRoomChanged RouteEventType = "room_changed"
)

// RouteEvent is the routing decision for one room snapshot.
type RouteEvent struct {
	Type RouteEventType
	Game string
	Room *rooms.Room
}

// Router turns the level-valued CurrentGame field into edge-triggered
// routing events. Repeated snapshots with the same active game produce data
// refreshes, never view swaps.
type Router struct {
	current string
}

func NewRouter() *Router {
	return &Router{}
}

// Seed sets the game the router considers active without emitting an event.
// Used after a session restore, where the restored screen is routed directly
// from the live document.
func (r *Router) Seed(game string) {
	r.current = game
}

// Route classifies a snapshot and advances the router's state.
func (r *Router) Route(room *rooms.Room) RouteEvent {
	game := room.CurrentGame

	if game != "" && game != r.current {
		r.current = game
		return RouteEvent{Type: RouteGameStarted, Game: game, Room: room}
	}

	if game == "" && r.current != "" {
		r.current = ""
		return RouteEvent{Type: RouteGameEnded, Room: room}
	}

	return RouteEvent{Type: RouteRoomChanged, Game: game, Room: room}
}
