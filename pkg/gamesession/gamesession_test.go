package gamesession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/cbodonnell/partyroom/pkg/sessions"
	"github.com/cbodonnell/partyroom/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, docStore store.DocumentStore) (*GameSession, sessions.Store) {
	t.Helper()
	sessionStore := sessions.NewInMemoryStore()
	g := NewGameSession(NewGameSessionOptions{
		Store:    docStore,
		Sessions: sessionStore,
	})
	t.Cleanup(g.Close)
	return g, sessionStore
}

// updateRecorder collects room snapshots delivered to an update handler.
type updateRecorder struct {
	mu    sync.Mutex
	rooms []*rooms.Room
}

func (r *updateRecorder) handle(room *rooms.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
}

func (r *updateRecorder) latest() *rooms.Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rooms) == 0 {
		return nil
	}
	return r.rooms[len(r.rooms)-1]
}

func (r *updateRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func TestGameSession_CreateRoom(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, sessionStore := newTestSession(t, docStore)
	ctx := context.Background()

	code, err := g.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, rooms.ValidRoomCode(code))
	assert.Equal(t, code, g.RoomCode())
	assert.True(t, g.IsHost())

	room, err := docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, g.CurrentPlayer().ID, room.Host)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players[0].IsHost)

	stored, err := sessionStore.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, code, stored.RoomCode)
	assert.Equal(t, g.CurrentPlayer().ID, stored.PlayerID)
	assert.True(t, stored.IsHost)
}

func TestGameSession_JoinRoom(t *testing.T) {
	docStore := store.NewInMemoryStore()
	host, _ := newTestSession(t, docStore)
	guest, _ := newTestSession(t, docStore)
	ctx := context.Background()

	code, err := host.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, guest.JoinRoom(ctx, code, "bob"))
	assert.False(t, guest.IsHost())

	room, err := docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	require.Len(t, room.Players, 2)
	assert.Equal(t, "bob", room.Players[1].Name)
	assert.False(t, room.Players[1].IsHost)
}

func TestGameSession_JoinRoom_NotFound(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)

	err := g.JoinRoom(context.Background(), "WXYZ", "bob")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, "", g.RoomCode())
}

func TestGameSession_JoinRoom_Full(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)
	ctx := context.Background()

	room := rooms.NewRoom("ABCD", rooms.Player{ID: "p0", Name: "host"}, 0)
	for i := 1; i < rooms.MaxPlayers; i++ {
		room.AddPlayer(rooms.Player{ID: rooms.GeneratePlayerID(), Name: "guest"})
	}
	require.NoError(t, docStore.SetRoom(ctx, room))

	err := g.JoinRoom(ctx, "ABCD", "late")
	assert.ErrorIs(t, err, ErrRoomFull)

	stored, err := docStore.GetRoom(ctx, "ABCD")
	require.NoError(t, err)
	assert.Len(t, stored.Players, rooms.MaxPlayers)
}

func TestGameSession_HostUniquenessAcrossJoinsAndLeaves(t *testing.T) {
	docStore := store.NewInMemoryStore()
	host, _ := newTestSession(t, docStore)
	guest1, _ := newTestSession(t, docStore)
	guest2, _ := newTestSession(t, docStore)
	ctx := context.Background()

	code, err := host.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, guest1.JoinRoom(ctx, code, "bob"))
	require.NoError(t, guest2.JoinRoom(ctx, code, "carol"))

	assertOneHost := func() *rooms.Room {
		room, err := docStore.GetRoom(ctx, code)
		require.NoError(t, err)
		hostCount := 0
		for _, p := range room.Players {
			if p.IsHost {
				hostCount++
				assert.Equal(t, room.Host, p.ID)
			}
		}
		assert.Equal(t, 1, hostCount)
		return room
	}

	assertOneHost()

	// Host leaves: first remaining player is promoted atomically with the
	// host field.
	bobID := guest1.CurrentPlayer().ID
	require.NoError(t, host.LeaveRoom(ctx))
	room := assertOneHost()
	assert.Equal(t, bobID, room.Host)

	require.NoError(t, guest1.LeaveRoom(ctx))
	room = assertOneHost()
	assert.Equal(t, guest2.CurrentPlayer().ID, room.Host)
}

func TestGameSession_LeaveRoom_DeletesEmptyRoom(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, sessionStore := newTestSession(t, docStore)
	ctx := context.Background()

	code, err := g.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, g.LeaveRoom(ctx))

	_, err = docStore.GetRoom(ctx, code)
	assert.True(t, store.IsNotFound(err))

	assert.Equal(t, "", g.RoomCode())
	assert.Nil(t, g.CurrentPlayer())
	assert.False(t, g.IsHost())

	stored, err := sessionStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGameSession_UpdateGameData_MergesKeys(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)
	ctx := context.Background()

	_, err := g.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, g.StartGame(ctx, "imposter", map[string]interface{}{
		"phase": "setup",
		"round": 1,
	}))

	require.NoError(t, g.UpdateGameData(ctx, map[string]interface{}{
		"phase": "vote",
	}))

	room, err := g.GetRoomData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "vote", room.GameData["phase"])
	assert.Equal(t, 1, room.GameData["round"])
}

func TestGameSession_HostGatedOperations(t *testing.T) {
	docStore := store.NewInMemoryStore()
	host, _ := newTestSession(t, docStore)
	guest, _ := newTestSession(t, docStore)
	ctx := context.Background()

	code, err := host.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, guest.JoinRoom(ctx, code, "bob"))

	// Non-host lifecycle calls are silent no-ops.
	require.NoError(t, guest.StartGame(ctx, "imposter", map[string]interface{}{"phase": "setup"}))
	room, err := docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "", room.CurrentGame)

	require.NoError(t, host.StartGame(ctx, "imposter", map[string]interface{}{"phase": "setup"}))
	require.NoError(t, host.SubmitPlayerAction(ctx, "vote", "p2"))

	require.NoError(t, guest.ClearGameActions(ctx))
	actions, err := host.GetPlayerActions(ctx, "vote")
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	require.NoError(t, guest.EndGame(ctx))
	room, err = docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "imposter", room.CurrentGame)
}

func TestGameSession_FullGameScenario(t *testing.T) {
	docStore := store.NewInMemoryStore()
	host, _ := newTestSession(t, docStore)
	guest, _ := newTestSession(t, docStore)
	ctx := context.Background()

	hostUpdates := &updateRecorder{}
	host.SetUpdateHandler(hostUpdates.handle)
	guestUpdates := &updateRecorder{}
	guest.SetUpdateHandler(guestUpdates.handle)

	code, err := host.CreateRoom(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, guest.JoinRoom(ctx, code, "bob"))

	room, err := host.GetRoomData(ctx)
	require.NoError(t, err)
	require.Len(t, room.Players, 2)
	assert.False(t, room.Players[1].IsHost)

	require.NoError(t, host.StartGame(ctx, "imposter", map[string]interface{}{
		"phase": "setup",
		"round": 1,
	}))

	room, err = host.GetRoomData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "imposter", room.CurrentGame)
	assert.Equal(t, "setup", room.GameData["phase"])

	// Both subscribers observe the game start.
	require.Eventually(t, func() bool {
		h, g := hostUpdates.latest(), guestUpdates.latest()
		return h != nil && h.CurrentGame == "imposter" && g != nil && g.CurrentGame == "imposter"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, host.SubmitPlayerAction(ctx, "vote", "bob"))
	require.NoError(t, guest.SubmitPlayerAction(ctx, "vote", "alice"))

	require.NoError(t, host.EndGame(ctx))

	room, err = host.GetRoomData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "", room.CurrentGame)
	assert.Empty(t, room.GameData)

	actions, err := host.GetPlayerActions(ctx, "vote")
	require.NoError(t, err)
	assert.Empty(t, actions)

	// Every client's handler fires with the game cleared.
	require.Eventually(t, func() bool {
		h, g := hostUpdates.latest(), guestUpdates.latest()
		return h != nil && h.CurrentGame == "" && g != nil && g.CurrentGame == ""
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGameSession_StartListening_NoDuplicateSubscriptions(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)
	ctx := context.Background()

	recorder := &updateRecorder{}
	g.SetUpdateHandler(recorder.handle)

	code, err := g.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	// Re-entering StartListening replaces the previous subscription.
	require.NoError(t, g.StartListening(ctx))
	require.NoError(t, g.StartListening(ctx))

	room, err := docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	require.NoError(t, docStore.SetRoom(ctx, room))

	require.Eventually(t, func() bool {
		return recorder.count() >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, recorder.count())
}

func TestGameSession_StopListening_NoFurtherCallbacks(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)
	ctx := context.Background()

	recorder := &updateRecorder{}
	g.SetUpdateHandler(recorder.handle)

	code, err := g.CreateRoom(ctx, "alice")
	require.NoError(t, err)

	g.StopListening()

	room, err := docStore.GetRoom(ctx, code)
	require.NoError(t, err)
	require.NoError(t, docStore.SetRoom(ctx, room))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, recorder.count())
}

func TestGameSession_RestoreSession(t *testing.T) {
	docStore := store.NewInMemoryStore()
	ctx := context.Background()

	room := rooms.NewRoom("ABCD", rooms.Player{ID: "p1", Name: "alice"}, 0)
	room.AddPlayer(rooms.Player{ID: "p2", Name: "bob"})
	require.NoError(t, docStore.SetRoom(ctx, room))

	g, sessionStore := newTestSession(t, docStore)
	// The stored host flag is stale: this device believes it is host, but
	// the live document says p1 is.
	require.NoError(t, sessionStore.Save(ctx, &sessions.Session{
		RoomCode:   "ABCD",
		PlayerID:   "p2",
		PlayerName: "bob",
		IsHost:     true,
	}))

	restored, err := g.RestoreSession(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	assert.Equal(t, "ABCD", g.RoomCode())
	assert.Equal(t, "p2", g.CurrentPlayer().ID)
	// Host is re-derived from the live document, not the stored flag.
	assert.False(t, g.IsHost())
	assert.False(t, g.CurrentPlayer().IsHost)
}

func TestGameSession_RestoreSession_AsHost(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, sessionStore := newTestSession(t, docStore)
	ctx := context.Background()

	room := rooms.NewRoom("ABCD", rooms.Player{ID: "p1", Name: "alice"}, 0)
	require.NoError(t, docStore.SetRoom(ctx, room))

	require.NoError(t, sessionStore.Save(ctx, &sessions.Session{
		RoomCode:   "ABCD",
		PlayerID:   "p1",
		PlayerName: "alice",
	}))

	restored, err := g.RestoreSession(ctx)
	require.NoError(t, err)
	require.True(t, restored)

	// The session-level flag and the player identity agree.
	assert.True(t, g.IsHost())
	assert.True(t, g.CurrentPlayer().IsHost)
}

func TestGameSession_RestoreSession_RoomGone(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, sessionStore := newTestSession(t, docStore)
	ctx := context.Background()

	require.NoError(t, sessionStore.Save(ctx, &sessions.Session{
		RoomCode: "GONE",
		PlayerID: "p1",
	}))

	restored, err := g.RestoreSession(ctx)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.Equal(t, "", g.RoomCode())

	stored, err := sessionStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGameSession_RestoreSession_PlayerRemoved(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, sessionStore := newTestSession(t, docStore)
	ctx := context.Background()

	room := rooms.NewRoom("ABCD", rooms.Player{ID: "p1", Name: "alice"}, 0)
	require.NoError(t, docStore.SetRoom(ctx, room))

	require.NoError(t, sessionStore.Save(ctx, &sessions.Session{
		RoomCode: "ABCD",
		PlayerID: "p2",
	}))

	restored, err := g.RestoreSession(ctx)
	require.NoError(t, err)
	assert.False(t, restored)

	stored, err := sessionStore.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestGameSession_RestoreSession_NoSession(t *testing.T) {
	docStore := store.NewInMemoryStore()
	g, _ := newTestSession(t, docStore)

	restored, err := g.RestoreSession(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)
}
