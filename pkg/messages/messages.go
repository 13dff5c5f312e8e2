package messages

import "encoding/json"

// Client message types
const (
	MessageTypeClientCreateRoom     = "create_room"
	MessageTypeClientJoinRoom       = "join_room"
	MessageTypeClientLeaveRoom      = "leave_room"
	MessageTypeClientStartGame      = "start_game"
	MessageTypeClientEndGame        = "end_game"
	MessageTypeClientUpdateGameData = "update_game_data"
	MessageTypeClientSubmitAction   = "submit_action"
	MessageTypeClientGetActions     = "get_actions"
	MessageTypeClientSendChat       = "send_chat"
	MessageTypeClientGetChat        = "get_chat"
)

// Server message types
const (
	MessageTypeServerRoomCreated = "room_created"
	MessageTypeServerRoomJoined  = "room_joined"
	MessageTypeServerRoomLeft    = "room_left"
	MessageTypeServerRoomUpdate  = "room_update"
	MessageTypeServerActions     = "actions"
	MessageTypeServerChatUpdate  = "chat_update"
	MessageTypeServerError       = "error"
)

// Message represents a generic message for serialization/deserialization
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type ClientCreateRoom struct {
	HostName string `json:"hostName"`
}

type ClientJoinRoom struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type ClientStartGame struct {
	Game string `json:"game"`
}

type ClientUpdateGameData struct {
	Updates map[string]interface{} `json:"updates"`
}

type ClientSubmitAction struct {
	ActionType string      `json:"actionType"`
	Data       interface{} `json:"data"`
}

type ClientGetActions struct {
	ActionType string `json:"actionType"`
}

type ClientSendChat struct {
	Text string `json:"text"`
}

type ServerRoomCreated struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type ServerRoomJoined struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type ServerError struct {
	Reason string `json:"reason"`
}

// NewMessage builds a Message of the given type with a JSON-encoded payload.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return &Message{Type: msgType, Payload: raw}, nil
}
