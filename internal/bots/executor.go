package bots

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadline/threadline/internal/threads"
)

// ActionSource is the store surface the executor reads from and touches.
type ActionSource interface {
	// ListEnabledForThread returns a thread's enabled, live actions with
	// their owning bots, ordered by creation.
	ListEnabledForThread(ctx context.Context, threadID string) ([]ThreadAction, error)
	// TouchLastTriggered records an execution timestamp on the action.
	TouchLastTriggered(ctx context.Context, actionID string, at time.Time) error
	// TouchBotLastTriggered records an execution timestamp on the bot.
	TouchBotLastTriggered(ctx context.Context, botID string, at time.Time) error
}

// ThreadAction pairs an action with its owning bot for one evaluation pass.
type ThreadAction struct {
	Bot    Bot
	Action Action
}

// Executor evaluates a thread's bot actions against one inbound message and
// runs the matching handlers. One misbehaving handler never blocks the rest.
type Executor struct {
	registry *Registry
	actions  ActionSource
	admins   threads.AdminChecker
	writer   threads.MessageWriter
	logger   *slog.Logger
	now      func() time.Time
}

// NewExecutor creates an Executor.
func NewExecutor(log *slog.Logger, registry *Registry, actions ActionSource, admins threads.AdminChecker, writer threads.MessageWriter) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		registry: registry,
		actions:  actions,
		admins:   admins,
		writer:   writer,
		logger:   log.With(slog.String("service", "bot-executor")),
		now:      time.Now,
	}
}

// Execute runs every eligible action of the thread against the message.
// Eligibility per action: enabled, owning bot off cooldown, admin gate
// satisfied, off cooldown, and a trigger match. Once a unique handler has
// fired, later unique handlers are skipped for this message; non-unique
// handlers keep evaluating. Handler failures are logged and isolated. Only
// the action listing can fail.
func (e *Executor) Execute(ctx context.Context, thread threads.Thread, message threads.Message) error {
	items, err := e.actions.ListEnabledForThread(ctx, thread.ID)
	if err != nil {
		return fmt.Errorf("list thread actions: %w", err)
	}

	now := e.now().UTC()
	uniqueFired := false
	botStamps := map[string]time.Time{}
	for _, item := range items {
		action := item.Action
		if !action.Enabled || !item.Bot.Enabled {
			continue
		}
		if at, ok := botStamps[item.Bot.ID]; ok {
			item.Bot.LastTriggeredAt = &at
		}
		if item.Bot.OnCooldown(now) {
			continue
		}
		if action.AdminOnly {
			admin, err := e.admins.IsAdmin(ctx, thread.ID, message.SenderID)
			if err != nil {
				e.logger.Error("admin check failed",
					slog.String("action_id", action.ID),
					slog.Any("error", err),
				)
				continue
			}
			if !admin {
				continue
			}
		}
		if action.OnCooldown(now) {
			continue
		}
		if !Matches(action.Match, action.Triggers, message.Body) {
			continue
		}

		def, err := e.registry.Resolve(action.Handler)
		if err != nil {
			e.logger.Warn("stored action references unknown handler",
				slog.String("action_id", action.ID),
				slog.String("handler", action.Handler),
			)
			continue
		}
		if def.Unique {
			if uniqueFired {
				continue
			}
			uniqueFired = true
		}

		if e.run(ctx, def, thread, message, item) && item.Bot.Cooldown > 0 {
			botStamps[item.Bot.ID] = e.now().UTC()
		}
	}
	return nil
}

// run invokes one handler and stamps the cooldowns on success.
func (e *Executor) run(ctx context.Context, def Definition, thread threads.Thread, message threads.Message, item ThreadAction) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("bot handler panicked",
				slog.String("handler", def.Alias),
				slog.String("action_id", item.Action.ID),
				slog.Any("panic", r),
			)
		}
	}()

	env := Envelope{
		Thread:    thread,
		Message:   message,
		Bot:       item.Bot,
		Action:    item.Action,
		Responder: &threadResponder{writer: e.writer, thread: thread, bot: item.Bot},
	}
	if err := def.New().Handle(ctx, env); err != nil {
		e.logger.Error("bot handler failed",
			slog.String("handler", def.Alias),
			slog.String("action_id", item.Action.ID),
			slog.Any("error", err),
		)
		return false
	}

	// Read-then-write, last write wins. Concurrent executions of the same
	// action across processes can both pass the cooldown check; accepted.
	at := e.now().UTC()
	if err := e.actions.TouchLastTriggered(ctx, item.Action.ID, at); err != nil {
		e.logger.Error("record action trigger failed",
			slog.String("action_id", item.Action.ID),
			slog.Any("error", err),
		)
	}
	if item.Bot.Cooldown > 0 {
		if err := e.actions.TouchBotLastTriggered(ctx, item.Bot.ID, at); err != nil {
			e.logger.Error("record bot trigger failed",
				slog.String("bot_id", item.Bot.ID),
				slog.Any("error", err),
			)
		}
	}
	return true
}

// threadResponder posts bot-authored replies back into the firing thread.
type threadResponder struct {
	writer threads.MessageWriter
	thread threads.Thread
	bot    Bot
}

func (r *threadResponder) Reply(ctx context.Context, body string) (threads.Message, error) {
	if r.writer == nil {
		return threads.Message{}, fmt.Errorf("message writer not configured")
	}
	return r.writer.StoreMessage(ctx, threads.StoreMessageInput{
		ThreadID: r.thread.ID,
		SenderID: r.bot.ID,
		Type:     threads.MessageTypeText,
		Body:     body,
		FromBot:  true,
	})
}
