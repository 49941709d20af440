package bots

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/threadline/threadline/internal/threads"
)

// Envelope carries everything a handler needs when its action fires.
type Envelope struct {
	Thread  threads.Thread
	Message threads.Message
	Bot     Bot
	Action  Action
	// Responder posts replies into the firing thread on behalf of the bot.
	Responder Responder
}

// DecodePayload unmarshals the action's stored payload into v. It is a no-op
// returning false when the action has no payload.
func (e Envelope) DecodePayload(v any) (bool, error) {
	if e.Action.Payload == nil {
		return false, nil
	}
	if err := json.Unmarshal([]byte(*e.Action.Payload), v); err != nil {
		return false, fmt.Errorf("decode action payload: %w", err)
	}
	return true, nil
}

// Responder is the reply surface handed to handlers. Messages sent through
// it are flagged as bot authored, which keeps them out of the dispatch
// pipeline.
type Responder interface {
	Reply(ctx context.Context, body string) (threads.Message, error)
}

// Handler is one executable unit of bot business logic.
//
// Rules declares validator/v10 tag expressions for the handler's extra
// configurable fields; those fields end up serialized into the action
// payload. ErrorMessages maps a failed field to a custom message shown to
// the caller. Handle runs when the owning action matches an inbound message.
type Handler interface {
	Rules() map[string]any
	ErrorMessages() map[string]string
	SerializePayload(fields map[string]any) (string, error)
	Handle(ctx context.Context, env Envelope) error
}

// Authorizer gates attaching a handler to a thread. Definitions registered
// with Authorize set must construct handlers implementing it.
type Authorizer interface {
	Authorize(ctx context.Context, thread threads.Thread, ownerID string) bool
}

// BaseHandler provides the default no-extra-fields behavior. Concrete
// handlers embed it and override what they declare.
type BaseHandler struct{}

// Rules declares no extra fields.
func (BaseHandler) Rules() map[string]any { return nil }

// ErrorMessages declares no custom messages.
func (BaseHandler) ErrorMessages() map[string]string { return nil }

// SerializePayload JSON-encodes the extra validated fields.
func (BaseHandler) SerializePayload(fields map[string]any) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	return string(data), nil
}
