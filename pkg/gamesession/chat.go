package gamesession

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/google/uuid"
)

const maxChatMessageLength = 500

// ChatHandler receives the room's full chat log, oldest first, every time a
// message is appended.
type ChatHandler func(messages []*rooms.ChatMessage)

// SetChatHandler registers the callback invoked with the updated chat log.
// It must be set before listening starts.
func (g *GameSession) SetChatHandler(handler ChatHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatHandler = handler
}

// SendChatMessage appends a room-wide chat message from this player. The
// text is trimmed; blank and oversized messages are rejected.
func (g *GameSession) SendChatMessage(ctx context.Context, text string) error {
	g.mu.RLock()
	code := g.roomCode
	player := g.player
	g.mu.RUnlock()

	if code == "" || player == nil {
		return ErrNotInRoom
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyChatMessage
	}
	if len(text) > maxChatMessageLength {
		return ErrChatMessageTooLong
	}

	msg := &rooms.ChatMessage{
		ID:         uuid.NewString(),
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}

	if err := g.store.AppendChatMessage(ctx, code, msg); err != nil {
		return fmt.Errorf("failed to send chat message: %v", err)
	}

	return nil
}

// GetChatMessages returns the current room's full chat log, oldest first,
// or an empty slice when not in a room.
func (g *GameSession) GetChatMessages(ctx context.Context) ([]*rooms.ChatMessage, error) {
	code := g.RoomCode()
	if code == "" {
		return []*rooms.ChatMessage{}, nil
	}

	messages, err := g.store.GetChatMessages(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %v", err)
	}

	return messages, nil
}
