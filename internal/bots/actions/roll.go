package actions

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/threadline/threadline/internal/bots"
)

// RollHandler replies with a random dice roll. The die size is an optional
// payload field.
type RollHandler struct {
	bots.BaseHandler
}

type rollPayload struct {
	Sides int `json:"sides"`
}

func (h *RollHandler) Rules() map[string]any {
	return map[string]any{
		"sides": "omitempty,min=2,max=1000",
	}
}

func (h *RollHandler) ErrorMessages() map[string]string {
	return map[string]string{
		"sides": "Sides must be between 2 and 1000.",
	}
}

func (h *RollHandler) Handle(ctx context.Context, env bots.Envelope) error {
	payload := rollPayload{Sides: 6}
	if _, err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Sides < 2 {
		payload.Sides = 6
	}
	roll := rand.IntN(payload.Sides) + 1
	return reply(ctx, env, fmt.Sprintf("%s rolled a %d (d%d)", env.Bot.Name, roll, payload.Sides))
}

func reply(ctx context.Context, env bots.Envelope, body string) error {
	_, err := env.Responder.Reply(ctx, body)
	return err
}
