package gamesession

import "errors"

var (
	// ErrRoomNotFound is returned when joining or restoring into a room
	// that does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when joining a room at capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrNotInRoom is returned by operations that require room membership.
	ErrNotInRoom = errors.New("not in a room")
	// ErrNoActiveGame is returned when submitting an action while the room
	// is in the lobby.
	ErrNoActiveGame = errors.New("no active game")
	// ErrEmptyChatMessage is returned when sending a blank chat message.
	ErrEmptyChatMessage = errors.New("chat message is empty")
	// ErrChatMessageTooLong is returned when a chat message exceeds the
	// length cap.
	ErrChatMessageTooLong = errors.New("chat message is too long")
)
