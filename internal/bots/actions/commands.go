package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadline/threadline/internal/bots"
	"github.com/threadline/threadline/internal/threads"
)

// ActionLister is the read surface the commands handler needs.
type ActionLister interface {
	ListBots(ctx context.Context, threadID string) ([]bots.Bot, error)
	ListActions(ctx context.Context, botID string) ([]bots.Action, error)
}

// CommandsHandler replies with a summary of every action installed on the
// thread. Registered unique with fixed triggers, so each thread answers
// !commands at most once per message.
type CommandsHandler struct {
	bots.BaseHandler
	registry *bots.Registry
	lister   ActionLister
}

func (h *CommandsHandler) Authorize(ctx context.Context, thread threads.Thread, ownerID string) bool {
	return thread.HasBotsFeature()
}

func (h *CommandsHandler) Handle(ctx context.Context, env bots.Envelope) error {
	installed, err := h.lister.ListBots(ctx, env.Thread.ID)
	if err != nil {
		return err
	}
	var lines []string
	for _, bot := range installed {
		actions, err := h.lister.ListActions(ctx, bot.ID)
		if err != nil {
			return err
		}
		for _, action := range actions {
			if !action.Enabled {
				continue
			}
			lines = append(lines, h.describe(bot, action))
		}
	}
	if len(lines) == 0 {
		return reply(ctx, env, "No bot commands are installed on this thread.")
	}
	return reply(ctx, env, strings.Join(lines, "\n"))
}

func (h *CommandsHandler) describe(bot bots.Bot, action bots.Action) string {
	name := action.Handler
	if def, err := h.registry.Resolve(action.Handler); err == nil {
		name = def.Name
	}
	if action.Match == bots.MatchAny {
		return fmt.Sprintf("%s · %s · fires on any message", bot.Name, name)
	}
	triggers := strings.Join(bots.SplitTriggers(action.Triggers), ", ")
	return fmt.Sprintf("%s · %s · %s", bot.Name, name, triggers)
}
