package rooms

// MaxPlayers is the maximum number of players allowed in a room.
const MaxPlayers = 12

// Room is the shared document describing one party-game session. It is
// stored and replicated as a whole; every write overwrites the full document.
type Room struct {
	Code string `json:"code"`
	// Host is the player ID of the current host. Exactly one player in
	// Players has IsHost set, and it matches this field.
	Host    string   `json:"host"`
	Players []Player `json:"players"`
	// CurrentGame is the active game kind. Empty means the room is in the
	// lobby.
	CurrentGame string `json:"currentGame,omitempty"`
	// GameData is the active game's own state. Its shape belongs to the
	// game module and is opaque here.
	GameData  map[string]interface{} `json:"gameData"`
	CreatedAt int64                  `json:"createdAt"`
}

// Player represents a member of a room.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// Action is a per-player, per-kind submission made during a game round.
// At most one action per (player, type) is retained; resubmission overwrites.
type Action struct {
	PlayerID   string      `json:"playerId"`
	PlayerName string      `json:"playerName"`
	Type       string      `json:"type"`
	Data       interface{} `json:"data"`
	Timestamp  int64       `json:"timestamp"`
}

// ChatMessage is one entry in a room's chat log. The log is append-only and
// ordered by insertion; messages are never edited or removed individually.
type ChatMessage struct {
	ID         string `json:"id"`
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// NewRoom creates a complete room document with the given host as its only
// player.
func NewRoom(code string, host Player, createdAt int64) *Room {
	host.IsHost = true
	return &Room{
		Code:      code,
		Host:      host.ID,
		Players:   []Player{host},
		GameData:  map[string]interface{}{},
		CreatedAt: createdAt,
	}
}

// FindPlayer returns the player with the given ID, or nil.
func (r *Room) FindPlayer(id string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return &r.Players[i]
		}
	}
	return nil
}

// HasPlayer reports whether a player with the given ID is in the room.
func (r *Room) HasPlayer(id string) bool {
	return r.FindPlayer(id) != nil
}

// IsFull reports whether the room is at capacity.
func (r *Room) IsFull() bool {
	return len(r.Players) >= MaxPlayers
}

// AddPlayer appends a player to the room in join order.
func (r *Room) AddPlayer(p Player) {
	r.Players = append(r.Players, p)
}

// RemovePlayer removes the player with the given ID. If the removed player
// was the host and other players remain, the first remaining player becomes
// host and the Host field is updated in the same mutation. It returns whether
// the player was found.
func (r *Room) RemovePlayer(id string) bool {
	idx := -1
	for i := range r.Players {
		if r.Players[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	wasHost := r.Players[idx].IsHost
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)

	if wasHost && len(r.Players) > 0 {
		r.Host = r.Players[0].ID
		r.Players[0].IsHost = true
	}

	return true
}

// Copy returns a deep copy of the room. GameData values are copied at the
// top level only; nested values are shared.
func (r *Room) Copy() *Room {
	if r == nil {
		return nil
	}

	c := &Room{
		Code:        r.Code,
		Host:        r.Host,
		Players:     make([]Player, len(r.Players)),
		CurrentGame: r.CurrentGame,
		GameData:    make(map[string]interface{}, len(r.GameData)),
		CreatedAt:   r.CreatedAt,
	}
	copy(c.Players, r.Players)
	for k, v := range r.GameData {
		c.GameData[k] = v
	}

	return c
}
