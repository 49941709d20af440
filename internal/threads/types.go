package threads

import (
	"context"
	"time"
)

// MessageType classifies a persisted message body.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeDocument MessageType = "document"
	MessageTypeSystem   MessageType = "system"
	MessageTypeCall     MessageType = "call"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeDocument, MessageTypeSystem, MessageTypeCall:
		return true
	}
	return false
}

// Thread is a conversation container. Bots only ever attach to group threads
// with the chat_bots feature enabled.
type Thread struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Group     bool      `json:"group"`
	ChatBots  bool      `json:"chat_bots"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasBotsFeature reports whether bot actions may fire in this thread.
func (t Thread) HasBotsFeature() bool {
	return t.Group && t.ChatBots
}

// Participant links a provider identity to a thread.
type Participant struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	OwnerID   string    `json:"owner_id"`
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a persisted thread message.
type Message struct {
	ID        string      `json:"id"`
	ThreadID  string      `json:"thread_id"`
	SenderID  string      `json:"sender_id"`
	Type      MessageType `json:"type"`
	Body      string      `json:"body"`
	FromBot   bool        `json:"from_bot"`
	CreatedAt time.Time   `json:"created_at"`
}

// IsText reports whether the message carries plain text.
func (m Message) IsText() bool { return m.Type == MessageTypeText }

// NewMessageEvent is the hub payload published after a message is stored.
type NewMessageEvent struct {
	Thread  Thread
	Message Message
}

// CreateThreadInput describes a new thread.
type CreateThreadInput struct {
	Subject  string `json:"subject"`
	Group    bool   `json:"group"`
	ChatBots bool   `json:"chat_bots"`
}

// StoreMessageInput describes a new message. Type defaults to text.
type StoreMessageInput struct {
	ThreadID string      `json:"-"`
	SenderID string      `json:"sender_id"`
	Type     MessageType `json:"type"`
	Body     string      `json:"body"`
	FromBot  bool        `json:"from_bot"`
}

// AdminChecker reports whether an owner administers a thread.
type AdminChecker interface {
	IsAdmin(ctx context.Context, threadID, ownerID string) (bool, error)
}

// MessageWriter is the write surface bot handlers reply through.
type MessageWriter interface {
	StoreMessage(ctx context.Context, input StoreMessageInput) (Message, error)
}
