package games

import "fmt"

// Game describes a registered party game: its player-count requirements and
// the game data it starts with. The core treats game data as opaque; the
// initial shape here is the contract between the lobby and the game's own
// phase machine.
type Game struct {
	Kind        string
	Name        string
	MinPlayers  int
	MaxPlayers  int
	initialData func() map[string]interface{}
}

// InitialData returns a fresh copy of the game's starting game data.
func (g *Game) InitialData() map[string]interface{} {
	return g.initialData()
}

var registry = map[string]*Game{
	"guess-commenter": {
		Kind:       "guess-commenter",
		Name:       "Guess the Commenter",
		MinPlayers: 3,
		MaxPlayers: 10,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "submit", "responses": []interface{}{}}
		},
	},
	"imposter": {
		Kind:       "imposter",
		Name:       "Imposter",
		MinPlayers: 4,
		MaxPlayers: 8,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "setup", "round": 1}
		},
	},
	"two-truths": {
		Kind:       "two-truths",
		Name:       "Two Truths and a Lie",
		MinPlayers: 3,
		MaxPlayers: 10,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "submit", "currentPlayerIndex": 0}
		},
	},
	"wavelength": {
		Kind:       "wavelength",
		Name:       "Wavelength",
		MinPlayers: 4,
		MaxPlayers: 12,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "setup", "round": 1, "score": 0}
		},
	},
	"story-chain": {
		Kind:       "story-chain",
		Name:       "Story Chain",
		MinPlayers: 3,
		MaxPlayers: 8,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "writing", "story": []interface{}{}, "round": 1}
		},
	},
	"alibi": {
		Kind:       "alibi",
		Name:       "Alibi",
		MinPlayers: 4,
		MaxPlayers: 8,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "setup", "round": 1}
		},
	},
	"quick-draw": {
		Kind:       "quick-draw",
		Name:       "Quick Draw",
		MinPlayers: 4,
		MaxPlayers: 10,
		initialData: func() map[string]interface{} {
			return map[string]interface{}{"phase": "start", "chain": []interface{}{}, "round": 1}
		},
	},
}

// Get returns the registered game for kind.
func Get(kind string) (*Game, bool) {
	g, ok := registry[kind]
	return g, ok
}

// Kinds returns the registered game kinds.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for kind := range registry {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Validate checks that kind is registered and the player count is within the
// game's bounds.
func Validate(kind string, playerCount int) error {
	g, ok := registry[kind]
	if !ok {
		return fmt.Errorf("unknown game: %s", kind)
	}
	if playerCount < g.MinPlayers {
		return fmt.Errorf("%s requires at least %d players", g.Name, g.MinPlayers)
	}
	if playerCount > g.MaxPlayers {
		return fmt.Errorf("%s supports at most %d players", g.Name, g.MaxPlayers)
	}
	return nil
}
