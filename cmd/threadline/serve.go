package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/threadline/threadline/internal/bots"
	"github.com/threadline/threadline/internal/bots/actions"
	"github.com/threadline/threadline/internal/broadcast"
	"github.com/threadline/threadline/internal/config"
	"github.com/threadline/threadline/internal/db"
	"github.com/threadline/threadline/internal/event"
	"github.com/threadline/threadline/internal/handlers"
	"github.com/threadline/threadline/internal/logger"
	"github.com/threadline/threadline/internal/prune"
	"github.com/threadline/threadline/internal/queue"
	"github.com/threadline/threadline/internal/server"
	"github.com/threadline/threadline/internal/threads"
)

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			provideLogger,
			provideDBConn,
			provideQuerier,
			event.NewHub,
			bots.NewRegistry,
			bots.NewResolver,
			provideThreadService,
			provideBotService,
			provideExecutor,
			queue.NewDispatcher,
			provideSubscriber,
			broadcast.NewHub,
			providePruneService,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(handlers.NewThreadsHandler),
			provideServerHandler(handlers.NewMessagesHandler),
			provideServerHandler(handlers.NewBotsHandler),
			provideServerHandler(handlers.NewSocketHandler),
			provideServer,
		),
		fx.Invoke(
			registerBotHandlers,
			attachSubscriber,
			attachBroadcast,
			startQueue,
			startPrune,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideQuerier(conn *pgxpool.Pool) db.Querier { return conn }

func provideThreadService(log *slog.Logger, querier db.Querier, hub *event.Hub) *threads.Service {
	return threads.NewService(log, querier, hub)
}

func provideBotService(log *slog.Logger, querier db.Querier, registry *bots.Registry, resolver *bots.Resolver, hub *event.Hub) *bots.Service {
	return bots.NewService(log, querier, registry, resolver, hub)
}

func provideExecutor(log *slog.Logger, registry *bots.Registry, botService *bots.Service, threadService *threads.Service) *bots.Executor {
	return bots.NewExecutor(log, registry, botService, threadService, threadService)
}

func provideSubscriber(log *slog.Logger, cfg config.Config, executor *bots.Executor, jobs *queue.Dispatcher) *bots.Subscriber {
	return bots.NewSubscriber(log, cfg.Messenger.Subscriber, executor, jobs)
}

func providePruneService(log *slog.Logger, cfg config.Config, threadService *threads.Service, botService *bots.Service) *prune.Service {
	return prune.NewService(log, cfg.Prune,
		purger{name: "threads", fn: threadService.PurgeArchived},
		purger{name: "bots", fn: botService.PurgeDeleted},
	)
}

func provideAuthHandler(log *slog.Logger, cfg config.Config) *handlers.AuthHandler {
	expiresIn, err := time.ParseDuration(cfg.Auth.JWTExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn, _ = time.ParseDuration(config.DefaultJWTExpiresIn)
	}
	return handlers.NewAuthHandler(log, cfg.Admin, cfg.Auth.JWTSecret, expiresIn)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config, params.ServerHandlers)
}

func registerBotHandlers(registry *bots.Registry, botService *bots.Service) {
	actions.RegisterAll(registry, actions.Deps{
		Registry: registry,
		Lister:   botService,
	})
}

func attachSubscriber(subscriber *bots.Subscriber, hub *event.Hub) {
	subscriber.Attach(hub)
}

func attachBroadcast(sockets *broadcast.Hub, hub *event.Hub) {
	sockets.Attach(hub)
}

func startQueue(lc fx.Lifecycle, jobs *queue.Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { jobs.Start(ctx); return nil },
		OnStop:  func(ctx context.Context) error { return jobs.Stop(ctx) },
	})
}

func startPrune(lc fx.Lifecycle, pruner *prune.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return pruner.Start() },
		OnStop:  func(ctx context.Context) error { pruner.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := db.Migrate(cfg.Postgres); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// purger adapts a service purge method to the prune service.
type purger struct {
	name string
	fn   func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (p purger) Name() string { return p.name }
func (p purger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	return p.fn(ctx, cutoff)
}
