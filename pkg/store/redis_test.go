package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewRedisStore(client)
}

func testRoom(code string) *rooms.Room {
	return rooms.NewRoom(code, rooms.Player{ID: "p1", Name: "alice"}, time.Now().UnixMilli())
}

func TestRedisStore_SetGetDeleteRoom(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	room := testRoom("ABCD")
	require.NoError(t, s.SetRoom(ctx, room))

	loaded, err := s.GetRoom(ctx, "ABCD")
	require.NoError(t, err)
	assert.Equal(t, room.Code, loaded.Code)
	assert.Equal(t, room.Host, loaded.Host)
	require.Len(t, loaded.Players, 1)
	assert.Equal(t, "alice", loaded.Players[0].Name)

	require.NoError(t, s.DeleteRoom(ctx, "ABCD"))

	_, err = s.GetRoom(ctx, "ABCD")
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_GetRoom_NotFound(t *testing.T) {
	s := newTestRedisStore(t)

	_, err := s.GetRoom(context.Background(), "WXYZ")
	assert.True(t, IsNotFound(err))
}

func TestRedisStore_Actions(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetAction(ctx, "ABCD", &rooms.Action{
		PlayerID: "p1", PlayerName: "alice", Type: "vote", Data: "first", Timestamp: 1,
	}))
	require.NoError(t, s.SetAction(ctx, "ABCD", &rooms.Action{
		PlayerID: "p2", PlayerName: "bob", Type: "vote", Data: "bob's", Timestamp: 2,
	}))

	// Same (player, type) key overwrites, no history.
	require.NoError(t, s.SetAction(ctx, "ABCD", &rooms.Action{
		PlayerID: "p1", PlayerName: "alice", Type: "vote", Data: "second", Timestamp: 3,
	}))

	actions, err := s.GetActions(ctx, "ABCD")
	require.NoError(t, err)
	require.Len(t, actions, 2)

	byPlayer := map[string]*rooms.Action{}
	for _, a := range actions {
		byPlayer[a.PlayerID] = a
	}
	assert.Equal(t, "second", byPlayer["p1"].Data)
	assert.Equal(t, "bob's", byPlayer["p2"].Data)

	require.NoError(t, s.ClearActions(ctx, "ABCD"))

	actions, err = s.GetActions(ctx, "ABCD")
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestRedisStore_Subscribe(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "ABCD")
	require.NoError(t, err)
	defer sub.Close()

	room := testRoom("ABCD")
	require.NoError(t, s.SetRoom(ctx, room))

	room.CurrentGame = "imposter"
	require.NoError(t, s.SetRoom(ctx, room))

	first := receiveUpdate(t, sub)
	assert.Equal(t, "", first.CurrentGame)

	second := receiveUpdate(t, sub)
	assert.Equal(t, "imposter", second.CurrentGame)
}

func TestRedisStore_Subscribe_OtherRoomIgnored(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, "ABCD")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.SetRoom(ctx, testRoom("WXYZ")))

	select {
	case room := <-sub.Updates():
		t.Fatalf("unexpected update for room %s", room.Code)
	case <-time.After(100 * time.Millisecond):
	}
}

func receiveUpdate(t *testing.T, sub Subscription) *rooms.Room {
	t.Helper()
	select {
	case room, ok := <-sub.Updates():
		require.True(t, ok, "updates channel closed")
		return room
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for room update")
		return nil
	}
}

func receiveChatMessage(t *testing.T, sub ChatSubscription) *rooms.ChatMessage {
	t.Helper()
	select {
	case msg, ok := <-sub.Messages():
		require.True(t, ok, "messages channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for chat message")
		return nil
	}
}

func TestRedisStore_ConcurrentWritesDeliverInCommitOrder(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		code := rooms.GenerateRoomCode()
		sub, err := s.Subscribe(ctx, code)
		require.NoError(t, err)

		const writers = 8
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				room := testRoom(code)
				room.GameData["writer"] = w
				assert.NoError(t, s.SetRoom(ctx, room))
			}(w)
		}
		wg.Wait()

		// SET and PUBLISH commit atomically, so the last published snapshot
		// is the stored document.
		var last *rooms.Room
		for n := 0; n < writers; n++ {
			last = receiveUpdate(t, sub)
		}
		stored, err := s.GetRoom(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, stored.GameData["writer"], last.GameData["writer"])

		require.NoError(t, sub.Close())
	}
}

func TestRedisStore_Chat(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	messages, err := s.GetChatMessages(ctx, "ABCD")
	require.NoError(t, err)
	assert.Empty(t, messages)

	require.NoError(t, s.AppendChatMessage(ctx, "ABCD", &rooms.ChatMessage{
		ID: "m1", PlayerID: "p1", PlayerName: "alice", Text: "hello", Timestamp: 1,
	}))
	require.NoError(t, s.AppendChatMessage(ctx, "ABCD", &rooms.ChatMessage{
		ID: "m2", PlayerID: "p2", PlayerName: "bob", Text: "hi", Timestamp: 2,
	}))

	messages, err = s.GetChatMessages(ctx, "ABCD")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hello", messages[0].Text)
	assert.Equal(t, "hi", messages[1].Text)
	assert.Equal(t, "alice", messages[0].PlayerName)

	require.NoError(t, s.ClearChatMessages(ctx, "ABCD"))
	messages, err = s.GetChatMessages(ctx, "ABCD")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestRedisStore_SubscribeChat(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	sub, err := s.SubscribeChat(ctx, "ABCD")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, s.AppendChatMessage(ctx, "ABCD", &rooms.ChatMessage{ID: "m1", Text: "first"}))
	require.NoError(t, s.AppendChatMessage(ctx, "ABCD", &rooms.ChatMessage{ID: "m2", Text: "second"}))

	assert.Equal(t, "first", receiveChatMessage(t, sub).Text)
	assert.Equal(t, "second", receiveChatMessage(t, sub).Text)
}
