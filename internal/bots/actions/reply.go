package actions

import (
	"context"

	"github.com/threadline/threadline/internal/bots"
)

// ReplyHandler sends one or more stored replies when its action matches.
type ReplyHandler struct {
	bots.BaseHandler
}

type replyPayload struct {
	Replies       []string `json:"replies"`
	QuoteOriginal bool     `json:"quote_original"`
}

func (h *ReplyHandler) Rules() map[string]any {
	return map[string]any{
		"replies":        "required,min=1,max=5,dive,required",
		"quote_original": "omitempty",
	}
}

func (h *ReplyHandler) ErrorMessages() map[string]string {
	return map[string]string{
		"replies": "Between 1 and 5 non-empty replies are required.",
	}
}

func (h *ReplyHandler) Handle(ctx context.Context, env bots.Envelope) error {
	var payload replyPayload
	if ok, err := env.DecodePayload(&payload); err != nil || !ok {
		return err
	}
	for i, body := range payload.Replies {
		if i == 0 && payload.QuoteOriginal && env.Message.Body != "" {
			body = "> " + env.Message.Body + "\n" + body
		}
		if _, err := env.Responder.Reply(ctx, body); err != nil {
			return err
		}
	}
	return nil
}
