package actions

import (
	"context"

	"github.com/threadline/threadline/internal/bots"
)

// NudgeHandler greets on every message. It carries a match-any override, so
// callers never supply a match method or triggers for it; a cooldown keeps
// it from flooding busy threads.
type NudgeHandler struct {
	bots.BaseHandler
}

func (h *NudgeHandler) Handle(ctx context.Context, env bots.Envelope) error {
	return reply(ctx, env, "👋 "+env.Bot.Name+" is listening")
}
