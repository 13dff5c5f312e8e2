package store

import (
	"context"
	"fmt"

	"github.com/cbodonnell/partyroom/pkg/rooms"
)

// DocumentStore is the backing document store for room state. Room documents
// are read and written whole; the last write wins. Each room additionally
// owns an action namespace keyed by (player, action type).
type DocumentStore interface {
	Close(ctx context.Context) error
	// GetRoom returns the room document for code. It returns *ErrNotFound
	// if the document does not exist.
	GetRoom(ctx context.Context, code string) (*rooms.Room, error)
	// SetRoom overwrites the full room document and notifies subscribers
	// with the committed snapshot.
	SetRoom(ctx context.Context, room *rooms.Room) error
	DeleteRoom(ctx context.Context, code string) error
	// SetAction writes the action under its (player, type) key, replacing
	// any previous submission with the same key.
	SetAction(ctx context.Context, code string, action *rooms.Action) error
	// GetActions returns every action in the room's namespace, all types.
	GetActions(ctx context.Context, code string) ([]*rooms.Action, error)
	// ClearActions deletes the room's entire action namespace.
	ClearActions(ctx context.Context, code string) error
	// AppendChatMessage appends the message to the room's chat log and
	// notifies chat subscribers with the committed message.
	AppendChatMessage(ctx context.Context, code string, msg *rooms.ChatMessage) error
	// GetChatMessages returns the room's full chat log, oldest first.
	GetChatMessages(ctx context.Context, code string) ([]*rooms.ChatMessage, error)
	// ClearChatMessages deletes the room's entire chat log.
	ClearChatMessages(ctx context.Context, code string) error
	// Subscribe opens a live subscription to the room document. Every
	// committed write is delivered as a full snapshot on the subscription's
	// updates channel, in commit order.
	Subscribe(ctx context.Context, code string) (Subscription, error)
	// SubscribeChat opens a live subscription to the room's chat log. Every
	// committed append is delivered on the messages channel, in commit order.
	SubscribeChat(ctx context.Context, code string) (ChatSubscription, error)
}

// Subscription is a live feed of room snapshots. The updates channel is
// closed when the subscription is closed; a subscription cannot be restarted.
type Subscription interface {
	Updates() <-chan *rooms.Room
	Close() error
}

// ChatSubscription is a live feed of appended chat messages. The messages
// channel is closed when the subscription is closed.
type ChatSubscription interface {
	Messages() <-chan *rooms.ChatMessage
	Close() error
}

// ActionKey returns the storage key for an action: one slot per player per
// action type.
func ActionKey(playerID, actionType string) string {
	return fmt.Sprintf("%s_%s", playerID, actionType)
}
