package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cbodonnell/partyroom/pkg/gamesession"
	"github.com/cbodonnell/partyroom/pkg/games"
	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/messages"
	"github.com/cbodonnell/partyroom/pkg/rooms"
	"github.com/cbodonnell/partyroom/pkg/sessions"
	"github.com/cbodonnell/partyroom/pkg/store"
	"github.com/gorilla/websocket"
)

const outboundBufferSize = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and runs one game session per client. Room
// snapshots are pushed to the client on every committed change; commands are
// handled in a read loop. A connection dropping stops its subscription but
// leaves the player in the room, so a reconnecting client can resume.
type WSHandler struct {
	store store.DocumentStore
}

func NewWSHandler(documentStore store.DocumentStore) *WSHandler {
	return &WSHandler{
		store: documentStore,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	log.Debug("New WebSocket connection from %s", conn.RemoteAddr().String())

	client := newWSClient(h.store, conn)
	go client.writePump()
	client.readLoop(r.Context())
}

type wsClient struct {
	conn    *websocket.Conn
	session *gamesession.GameSession

	outbound chan *messages.Message
	done     chan struct{}
	once     sync.Once
}

func newWSClient(documentStore store.DocumentStore, conn *websocket.Conn) *wsClient {
	c := &wsClient{
		conn:     conn,
		outbound: make(chan *messages.Message, outboundBufferSize),
		done:     make(chan struct{}),
	}

	c.session = gamesession.NewGameSession(gamesession.NewGameSessionOptions{
		Store: documentStore,
		// The browser keeps its own session storage; nothing persists
		// server-side per connection.
		Sessions: sessions.NewInMemoryStore(),
	})
	c.session.SetUpdateHandler(func(room *rooms.Room) {
		c.sendPayload(messages.MessageTypeServerRoomUpdate, room)
	})
	c.session.SetChatHandler(func(chat []*rooms.ChatMessage) {
		c.sendPayload(messages.MessageTypeServerChatUpdate, chat)
	})

	return c
}

func (c *wsClient) close() {
	c.once.Do(func() {
		c.session.Close()
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) send(msg *messages.Message) {
	select {
	case c.outbound <- msg:
	case <-c.done:
	default:
		log.Warn("Dropping message to %s: client not keeping up", c.conn.RemoteAddr().String())
	}
}

func (c *wsClient) sendPayload(msgType string, payload interface{}) {
	msg, err := messages.NewMessage(msgType, payload)
	if err != nil {
		log.Error("Failed to build %s message: %v", msgType, err)
		return
	}
	c.send(msg)
}

func (c *wsClient) sendError(reason string) {
	c.sendPayload(messages.MessageTypeServerError, &messages.ServerError{Reason: reason})
}

func (c *wsClient) writePump() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.outbound:
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Error("Failed to write message to %s: %v", c.conn.RemoteAddr().String(), err)
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) readLoop(ctx context.Context) {
	defer c.close()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading WebSocket message from %s: %v", c.conn.RemoteAddr().String(), err)
			}
			log.Trace("Connection closed for %s", c.conn.RemoteAddr().String())
			return
		}

		msg := &messages.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			c.sendError(fmt.Sprintf("malformed message: %v", err))
			continue
		}

		if err := c.handleMessage(ctx, msg); err != nil {
			c.sendError(err.Error())
		}
	}
}

func (c *wsClient) handleMessage(ctx context.Context, msg *messages.Message) error {
	log.Trace("Received message of type %s", msg.Type)

	switch msg.Type {
	case messages.MessageTypeClientCreateRoom:
		payload := &messages.ClientCreateRoom{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed create room payload: %v", err)
		}
		return c.handleCreateRoom(ctx, payload)
	case messages.MessageTypeClientJoinRoom:
		payload := &messages.ClientJoinRoom{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed join room payload: %v", err)
		}
		return c.handleJoinRoom(ctx, payload)
	case messages.MessageTypeClientLeaveRoom:
		if err := c.session.LeaveRoom(ctx); err != nil {
			return fmt.Errorf("failed to leave room: %v", err)
		}
		c.sendPayload(messages.MessageTypeServerRoomLeft, nil)
		return nil
	case messages.MessageTypeClientStartGame:
		payload := &messages.ClientStartGame{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed start game payload: %v", err)
		}
		return c.handleStartGame(ctx, payload)
	case messages.MessageTypeClientEndGame:
		return c.session.EndGame(ctx)
	case messages.MessageTypeClientUpdateGameData:
		payload := &messages.ClientUpdateGameData{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed update game data payload: %v", err)
		}
		return c.session.UpdateGameData(ctx, payload.Updates)
	case messages.MessageTypeClientSubmitAction:
		payload := &messages.ClientSubmitAction{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed submit action payload: %v", err)
		}
		return c.session.SubmitPlayerAction(ctx, payload.ActionType, payload.Data)
	case messages.MessageTypeClientGetActions:
		payload := &messages.ClientGetActions{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed get actions payload: %v", err)
		}
		actions, err := c.session.GetPlayerActions(ctx, payload.ActionType)
		if err != nil {
			return fmt.Errorf("failed to get actions: %v", err)
		}
		c.sendPayload(messages.MessageTypeServerActions, actions)
		return nil
	case messages.MessageTypeClientSendChat:
		payload := &messages.ClientSendChat{}
		if err := json.Unmarshal(msg.Payload, payload); err != nil {
			return fmt.Errorf("malformed send chat payload: %v", err)
		}
		return c.session.SendChatMessage(ctx, payload.Text)
	case messages.MessageTypeClientGetChat:
		chat, err := c.session.GetChatMessages(ctx)
		if err != nil {
			return fmt.Errorf("failed to get chat messages: %v", err)
		}
		c.sendPayload(messages.MessageTypeServerChatUpdate, chat)
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (c *wsClient) handleCreateRoom(ctx context.Context, payload *messages.ClientCreateRoom) error {
	if payload.HostName == "" {
		return fmt.Errorf("host name is required")
	}

	code, err := c.session.CreateRoom(ctx, payload.HostName)
	if err != nil {
		return fmt.Errorf("failed to create room: %v", err)
	}

	c.sendPayload(messages.MessageTypeServerRoomCreated, &messages.ServerRoomCreated{
		RoomCode: code,
		PlayerID: c.session.CurrentPlayer().ID,
	})
	return nil
}

func (c *wsClient) handleJoinRoom(ctx context.Context, payload *messages.ClientJoinRoom) error {
	if payload.PlayerName == "" {
		return fmt.Errorf("player name is required")
	}
	if !rooms.ValidRoomCode(payload.RoomCode) {
		return fmt.Errorf("room code must be %d letters", rooms.RoomCodeLength)
	}

	if err := c.session.JoinRoom(ctx, payload.RoomCode, payload.PlayerName); err != nil {
		return err
	}

	c.sendPayload(messages.MessageTypeServerRoomJoined, &messages.ServerRoomJoined{
		RoomCode: payload.RoomCode,
		PlayerID: c.session.CurrentPlayer().ID,
	})
	return nil
}

func (c *wsClient) handleStartGame(ctx context.Context, payload *messages.ClientStartGame) error {
	room, err := c.session.GetRoomData(ctx)
	if err != nil {
		return fmt.Errorf("failed to read room: %v", err)
	}
	if room == nil {
		return fmt.Errorf("not in a room")
	}

	if err := games.Validate(payload.Game, len(room.Players)); err != nil {
		return err
	}

	game, _ := games.Get(payload.Game)
	return c.session.StartGame(ctx, game.Kind, game.InitialData())
}
