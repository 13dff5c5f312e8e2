package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix    = "rooms:"
	actionsKeyPrefix = "actions:"
	chatsKeyPrefix   = "chats:"

	// Abandoned rooms, their actions, and their chat logs are garbage
	// collected by expiry.
	roomExpiration = 24 * time.Hour

	subscriptionBufferSize = 64
)

// RedisStore implements DocumentStore on Redis. Room documents are JSON
// values, action namespaces are hashes, chat logs are lists, and live
// subscriptions are backed by pub/sub: every committed write publishes to
// the room's update or chat channel in the same MULTI/EXEC block.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed document store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

func (s *RedisStore) Close(ctx context.Context) error {
	return s.client.Close()
}

func roomKey(code string) string {
	return roomKeyPrefix + code
}

func actionsKey(code string) string {
	return actionsKeyPrefix + code
}

func chatsKey(code string) string {
	return chatsKeyPrefix + code
}

func updatesChannel(code string) string {
	return roomKeyPrefix + code + ":updates"
}

func chatChannel(code string) string {
	return chatsKeyPrefix + code + ":updates"
}

func (s *RedisStore) GetRoom(ctx context.Context, code string) (*rooms.Room, error) {
	data, err := s.client.Get(ctx, roomKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &ErrNotFound{}
		}
		return nil, fmt.Errorf("failed to get room: %v", err)
	}

	room := &rooms.Room{}
	if err := json.Unmarshal(data, room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %v", err)
	}

	return room, nil
}

func (s *RedisStore) SetRoom(ctx context.Context, room *rooms.Room) error {
	if room == nil {
		return fmt.Errorf("room is nil")
	}

	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %v", err)
	}

	// SET and PUBLISH run in one MULTI/EXEC block so publish order equals
	// commit order: subscribers always converge on the stored document.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, roomKey(room.Code), data, roomExpiration)
		pipe.Publish(ctx, updatesChannel(room.Code), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set room: %v", err)
	}

	return nil
}

func (s *RedisStore) DeleteRoom(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, roomKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %v", err)
	}
	return nil
}

func (s *RedisStore) SetAction(ctx context.Context, code string, action *rooms.Action) error {
	if action == nil {
		return fmt.Errorf("action is nil")
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action: %v", err)
	}

	key := actionsKey(code)
	if err := s.client.HSet(ctx, key, ActionKey(action.PlayerID, action.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to set action: %v", err)
	}

	if err := s.client.Expire(ctx, key, roomExpiration).Err(); err != nil {
		return fmt.Errorf("failed to set action expiration: %v", err)
	}

	return nil
}

func (s *RedisStore) GetActions(ctx context.Context, code string) ([]*rooms.Action, error) {
	entries, err := s.client.HGetAll(ctx, actionsKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get actions: %v", err)
	}

	actions := make([]*rooms.Action, 0, len(entries))
	for key, data := range entries {
		action := &rooms.Action{}
		if err := json.Unmarshal([]byte(data), action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action %s: %v", key, err)
		}
		actions = append(actions, action)
	}

	return actions, nil
}

func (s *RedisStore) ClearActions(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, actionsKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to clear actions: %v", err)
	}
	return nil
}

func (s *RedisStore) AppendChatMessage(ctx context.Context, code string, msg *rooms.ChatMessage) error {
	if msg == nil {
		return fmt.Errorf("chat message is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %v", err)
	}

	// Same MULTI/EXEC shape as SetRoom: the append and its notification
	// commit together, so messages stream in log order.
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, chatsKey(code), data)
		pipe.Expire(ctx, chatsKey(code), roomExpiration)
		pipe.Publish(ctx, chatChannel(code), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append chat message: %v", err)
	}

	return nil
}

func (s *RedisStore) GetChatMessages(ctx context.Context, code string) ([]*rooms.ChatMessage, error) {
	entries, err := s.client.LRange(ctx, chatsKey(code), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %v", err)
	}

	messages := make([]*rooms.ChatMessage, 0, len(entries))
	for _, data := range entries {
		msg := &rooms.ChatMessage{}
		if err := json.Unmarshal([]byte(data), msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %v", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

func (s *RedisStore) ClearChatMessages(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, chatsKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to clear chat messages: %v", err)
	}
	return nil
}

func (s *RedisStore) Subscribe(ctx context.Context, code string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, updatesChannel(code))

	// Confirm the subscription before returning so no update committed
	// after Subscribe is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room updates: %v", err)
	}

	sub := &redisSubscription{
		pubsub:  pubsub,
		updates: make(chan *rooms.Room, subscriptionBufferSize),
	}
	go sub.run()

	return sub, nil
}

type redisSubscription struct {
	pubsub  *redis.PubSub
	updates chan *rooms.Room
}

func (s *redisSubscription) run() {
	defer close(s.updates)
	for msg := range s.pubsub.Channel() {
		room := &rooms.Room{}
		if err := json.Unmarshal([]byte(msg.Payload), room); err != nil {
			log.Error("Failed to unmarshal room update: %v", err)
			continue
		}
		s.updates <- room
	}
}

func (s *redisSubscription) Updates() <-chan *rooms.Room {
	return s.updates
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}

func (s *RedisStore) SubscribeChat(ctx context.Context, code string) (ChatSubscription, error) {
	pubsub := s.client.Subscribe(ctx, chatChannel(code))

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to chat messages: %v", err)
	}

	sub := &redisChatSubscription{
		pubsub:   pubsub,
		messages: make(chan *rooms.ChatMessage, subscriptionBufferSize),
	}
	go sub.run()

	return sub, nil
}

type redisChatSubscription struct {
	pubsub   *redis.PubSub
	messages chan *rooms.ChatMessage
}

func (s *redisChatSubscription) run() {
	defer close(s.messages)
	for payload := range s.pubsub.Channel() {
		msg := &rooms.ChatMessage{}
		if err := json.Unmarshal([]byte(payload.Payload), msg); err != nil {
			log.Error("Failed to unmarshal chat message: %v", err)
			continue
		}
		s.messages <- msg
	}
}

func (s *redisChatSubscription) Messages() <-chan *rooms.ChatMessage {
	return s.messages
}

func (s *redisChatSubscription) Close() error {
	return s.pubsub.Close()
}
