package gamesession

import (
	"context"
	"fmt"

	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/cbodonnell/partyroom/pkg/store"
)

type listener struct {
	sub     store.Subscription
	chatSub store.ChatSubscription
}

// StartListening opens live subscriptions to the current room's document and
// chat log, dispatching room snapshots to the update handler and the growing
// chat log to the chat handler, in the order the store committed them. Any
// previous subscriptions are torn down first, so a room never has duplicate
// listeners from one session.
func (g *GameSession) StartListening(ctx context.Context) error {
	code := g.RoomCode()
	if code == "" {
		return ErrNotInRoom
	}

	g.StopListening()

	sub, err := g.store.Subscribe(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to subscribe to room %s: %v", code, err)
	}

	chatSub, err := g.store.SubscribeChat(ctx, code)
	if err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe to chat for room %s: %v", code, err)
	}

	// The chat subscription is opened before the history read, so no append
	// can fall between them; overlap is deduplicated by message ID.
	history, err := g.store.GetChatMessages(ctx, code)
	if err != nil {
		sub.Close()
		chatSub.Close()
		return fmt.Errorf("failed to read chat history for room %s: %v", code, err)
	}

	l := &listener{sub: sub, chatSub: chatSub}

	g.mu.Lock()
	g.listener = l
	g.mu.Unlock()

	go g.dispatch(l)
	go g.dispatchChat(l, history)

	log.Debug("Listening for updates on room %s", code)
	return nil
}

// StopListening tears down the current subscriptions. No new callbacks begin
// after it returns; a callback already in flight on the dispatch goroutine
// may still complete. Safe to call from within a handler, which is also why
// it cannot wait for the dispatcher to drain.
func (g *GameSession) StopListening() {
	g.mu.Lock()
	l := g.listener
	g.listener = nil
	g.mu.Unlock()

	if l == nil {
		return
	}

	if err := l.sub.Close(); err != nil {
		log.Error("Failed to close subscription: %v", err)
	}
	if err := l.chatSub.Close(); err != nil {
		log.Error("Failed to close chat subscription: %v", err)
	}
}

func (g *GameSession) dispatch(l *listener) {
	for room := range l.sub.Updates() {
		g.mu.RLock()
		active := g.listener == l
		handler := g.handler
		g.mu.RUnlock()

		if !active {
			return
		}
		if handler != nil {
			handler(room)
		}
	}
}

func (g *GameSession) dispatchChat(l *listener, history []*rooms.ChatMessage) {
	seen := make(map[string]bool, len(history))
	for _, msg := range history {
		seen[msg.ID] = true
	}

	chatLog := history
	for msg := range l.chatSub.Messages() {
		if seen[msg.ID] {
			continue
		}
		chatLog = append(chatLog, msg)

		g.mu.RLock()
		active := g.listener == l
		handler := g.chatHandler
		g.mu.RUnlock()

		if !active {
			return
		}
		if handler != nil {
			snapshot := make([]*rooms.ChatMessage, len(chatLog))
			copy(snapshot, chatLog)
			handler(snapshot)
		}
	}
}
