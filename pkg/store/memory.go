package store

import (
	"context"
	"sync"

	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/rooms"
)

// InMemoryStore implements DocumentStore with in-process maps. It is used in
// tests and single-process setups; all sessions sharing the instance observe
// each other's writes through their subscriptions.
type InMemoryStore struct {
	lock     sync.RWMutex
	rooms    map[string]*rooms.Room
	actions  map[string]map[string]*rooms.Action
	chats    map[string][]*rooms.ChatMessage
	subs     map[string][]*memorySubscription
	chatSubs map[string][]*memoryChatSubscription
}

// NewInMemoryStore creates a new in-memory document store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms:    make(map[string]*rooms.Room),
		actions:  make(map[string]map[string]*rooms.Action),
		chats:    make(map[string][]*rooms.ChatMessage),
		subs:     make(map[string][]*memorySubscription),
		chatSubs: make(map[string][]*memoryChatSubscription),
	}
}

func (s *InMemoryStore) Close(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for code, subs := range s.subs {
		for _, sub := range subs {
			sub.closeChannel()
		}
		delete(s.subs, code)
	}
	for code, subs := range s.chatSubs {
		for _, sub := range subs {
			sub.closeChannel()
		}
		delete(s.chatSubs, code)
	}
	return nil
}

func (s *InMemoryStore) GetRoom(ctx context.Context, code string) (*rooms.Room, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	room, ok := s.rooms[code]
	if !ok {
		return nil, &ErrNotFound{}
	}

	return room.Copy(), nil
}

func (s *InMemoryStore) SetRoom(ctx context.Context, room *rooms.Room) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	committed := room.Copy()
	s.rooms[room.Code] = committed

	// Fan-out happens inside the commit critical section so concurrent
	// writers deliver in commit order; deliver never blocks, it drops.
	for _, sub := range s.subs[room.Code] {
		sub.deliver(committed.Copy())
	}

	return nil
}

func (s *InMemoryStore) DeleteRoom(ctx context.Context, code string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.rooms, code)
	return nil
}

func (s *InMemoryStore) SetAction(ctx context.Context, code string, action *rooms.Action) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	ns, ok := s.actions[code]
	if !ok {
		ns = make(map[string]*rooms.Action)
		s.actions[code] = ns
	}

	copied := *action
	ns[ActionKey(action.PlayerID, action.Type)] = &copied

	return nil
}

func (s *InMemoryStore) GetActions(ctx context.Context, code string) ([]*rooms.Action, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	ns := s.actions[code]
	actions := make([]*rooms.Action, 0, len(ns))
	for _, action := range ns {
		copied := *action
		actions = append(actions, &copied)
	}

	return actions, nil
}

func (s *InMemoryStore) ClearActions(ctx context.Context, code string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.actions, code)
	return nil
}

func (s *InMemoryStore) AppendChatMessage(ctx context.Context, code string, msg *rooms.ChatMessage) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	copied := *msg
	s.chats[code] = append(s.chats[code], &copied)

	for _, sub := range s.chatSubs[code] {
		delivered := copied
		sub.deliver(&delivered)
	}

	return nil
}

func (s *InMemoryStore) GetChatMessages(ctx context.Context, code string) ([]*rooms.ChatMessage, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	entries := s.chats[code]
	messages := make([]*rooms.ChatMessage, 0, len(entries))
	for _, msg := range entries {
		copied := *msg
		messages = append(messages, &copied)
	}

	return messages, nil
}

func (s *InMemoryStore) ClearChatMessages(ctx context.Context, code string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.chats, code)
	return nil
}

func (s *InMemoryStore) Subscribe(ctx context.Context, code string) (Subscription, error) {
	sub := &memorySubscription{
		store:   s,
		code:    code,
		updates: make(chan *rooms.Room, subscriptionBufferSize),
	}

	s.lock.Lock()
	s.subs[code] = append(s.subs[code], sub)
	s.lock.Unlock()

	return sub, nil
}

type memorySubscription struct {
	store   *InMemoryStore
	code    string
	updates chan *rooms.Room

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) deliver(room *rooms.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.updates <- room:
	default:
		log.Warn("Dropping room update for %s: subscriber not keeping up", s.code)
	}
}

func (s *memorySubscription) Updates() <-chan *rooms.Room {
	return s.updates
}

func (s *memorySubscription) Close() error {
	s.store.lock.Lock()
	subs := s.store.subs[s.code]
	for i, sub := range subs {
		if sub == s {
			s.store.subs[s.code] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.store.lock.Unlock()

	s.closeChannel()
	return nil
}

func (s *memorySubscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.updates)
}

func (s *InMemoryStore) SubscribeChat(ctx context.Context, code string) (ChatSubscription, error) {
	sub := &memoryChatSubscription{
		store:    s,
		code:     code,
		messages: make(chan *rooms.ChatMessage, subscriptionBufferSize),
	}

	s.lock.Lock()
	s.chatSubs[code] = append(s.chatSubs[code], sub)
	s.lock.Unlock()

	return sub, nil
}

type memoryChatSubscription struct {
	store    *InMemoryStore
	code     string
	messages chan *rooms.ChatMessage

	mu     sync.Mutex
	closed bool
}

func (s *memoryChatSubscription) deliver(msg *rooms.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.messages <- msg:
	default:
		log.Warn("Dropping chat message for %s: subscriber not keeping up", s.code)
	}
}

func (s *memoryChatSubscription) Messages() <-chan *rooms.ChatMessage {
	return s.messages
}

func (s *memoryChatSubscription) Close() error {
	s.store.lock.Lock()
	subs := s.store.chatSubs[s.code]
	for i, sub := range subs {
		if sub == s {
			s.store.chatSubs[s.code] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.store.lock.Unlock()

	s.closeChannel()
	return nil
}

func (s *memoryChatSubscription) closeChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.messages)
}
