package bots

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/event"
	"github.com/threadline/threadline/internal/queue"
	"github.com/threadline/threadline/internal/threads"
)

// Subscriber is the single entry point from the message pipeline into bot
// execution. It filters hub events and forwards eligible messages to the
// executor, inline or through a named queue depending on configuration.
type Subscriber struct {
	cfg      config.SubscriberConfig
	executor *Executor
	jobs     *queue.Dispatcher
	logger   *slog.Logger
}

// NewSubscriber creates a Subscriber.
func NewSubscriber(log *slog.Logger, cfg config.SubscriberConfig, executor *Executor, jobs *queue.Dispatcher) *Subscriber {
	if log == nil {
		log = slog.Default()
	}
	return &Subscriber{
		cfg:      cfg,
		executor: executor,
		jobs:     jobs,
		logger:   log.With(slog.String("service", "bot-subscriber")),
	}
}

// Attach registers the subscriber on the hub.
func (s *Subscriber) Attach(hub *event.Hub) {
	hub.Subscribe(func(ev event.Event) {
		if ev.Type != event.TypeMessageCreated {
			return
		}
		payload, ok := ev.Data.(threads.NewMessageEvent)
		if !ok {
			return
		}
		s.OnNewMessage(context.Background(), payload)
	})
}

// OnNewMessage forwards the message to the executor when it is eligible.
// Bot-authored messages are rejected here, at the single pipeline entry
// point, so a bot reply can never re-trigger the pipeline.
func (s *Subscriber) OnNewMessage(ctx context.Context, ev threads.NewMessageEvent) {
	if !s.shouldDispatch(ev) {
		return
	}
	if s.cfg.Queued && s.jobs != nil {
		job := &messageJob{executor: s.executor, event: ev}
		if err := s.jobs.Dispatch(s.cfg.Channel, job); err != nil {
			s.logger.Error("queue bot dispatch failed",
				slog.String("thread_id", ev.Thread.ID),
				slog.String("message_id", ev.Message.ID),
				slog.Any("error", err),
			)
		}
		return
	}
	if err := s.executor.Execute(ctx, ev.Thread, ev.Message); err != nil {
		s.logger.Error("bot execution failed",
			slog.String("thread_id", ev.Thread.ID),
			slog.String("message_id", ev.Message.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Subscriber) shouldDispatch(ev threads.NewMessageEvent) bool {
	return s.cfg.Enabled &&
		ev.Message.IsText() &&
		!ev.Message.FromBot &&
		ev.Thread.HasBotsFeature()
}

// messageJob runs one executor pass on a queue worker.
type messageJob struct {
	executor *Executor
	event    threads.NewMessageEvent
}

func (j *messageJob) Name() string {
	return fmt.Sprintf("bot-message-handler:%s", j.event.Message.ID)
}

func (j *messageJob) Run(ctx context.Context) error {
	return j.executor.Execute(ctx, j.event.Thread, j.event.Message)
}
