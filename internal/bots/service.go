package bots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	dbpkg "github.com/threadline/threadline/internal/db"
	"github.com/threadline/threadline/internal/event"
)

var (
	ErrBotNotFound    = errors.New("bot not found")
	ErrActionNotFound = errors.New("bot action not found")
	// ErrHandlerTaken is returned when attaching a second action for a
	// unique handler to the same thread.
	ErrHandlerTaken = errors.New("unique handler already attached to thread")
)

// Service persists bots and their actions. Writes to actions always go
// through the Resolver so only canonical records reach the store.
type Service struct {
	db        dbpkg.Querier
	registry  *Registry
	resolver  *Resolver
	logger    *slog.Logger
	publisher event.Publisher
}

// NewService creates a bot service.
func NewService(log *slog.Logger, querier dbpkg.Querier, registry *Registry, resolver *Resolver, publishers ...event.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	var publisher event.Publisher
	if len(publishers) > 0 {
		publisher = publishers[0]
	}
	return &Service{
		db:        querier,
		registry:  registry,
		resolver:  resolver,
		logger:    log.With(slog.String("service", "bots")),
		publisher: publisher,
	}
}

// CreateBotRequest describes a new bot.
type CreateBotRequest struct {
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled"`
	Cooldown int    `json:"cooldown"`
}

// CreateBot attaches a bot to a thread.
func (s *Service) CreateBot(ctx context.Context, threadID, ownerID string, req CreateBotRequest) (Bot, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return Bot{}, err
	}
	ownerUUID, err := dbpkg.ParseUUID(ownerID)
	if err != nil {
		return Bot{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Bot{}, fmt.Errorf("bot name is required")
	}
	if req.Cooldown < 0 || req.Cooldown > CooldownLimit {
		return Bot{}, fmt.Errorf("bot cooldown must be between 0 and %d", CooldownLimit)
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO bots (thread_id, owner_id, name, enabled, cooldown)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, thread_id, owner_id, name, enabled, cooldown,
		          last_triggered_at, created_at, updated_at`,
		threadUUID, ownerUUID, name, enabled, req.Cooldown,
	)
	return scanBot(row)
}

// GetBot returns a live bot by id.
func (s *Service) GetBot(ctx context.Context, botID string) (Bot, error) {
	botUUID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return Bot{}, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, thread_id, owner_id, name, enabled, cooldown,
		       last_triggered_at, created_at, updated_at
		FROM bots WHERE id = $1 AND deleted_at IS NULL`,
		botUUID,
	)
	bot, err := scanBot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bot{}, ErrBotNotFound
		}
		return Bot{}, err
	}
	return bot, nil
}

// ListBots returns a thread's live bots in creation order.
func (s *Service) ListBots(ctx context.Context, threadID string) ([]Bot, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, thread_id, owner_id, name, enabled, cooldown,
		       last_triggered_at, created_at, updated_at
		FROM bots WHERE thread_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		threadUUID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Bot
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, bot)
	}
	return items, rows.Err()
}

// RemoveBot soft deletes a bot and its actions.
func (s *Service) RemoveBot(ctx context.Context, botID string) error {
	botUUID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE bots SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		botUUID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	_, err = s.db.Exec(ctx, `
		UPDATE bot_actions SET deleted_at = now() WHERE bot_id = $1 AND deleted_at IS NULL`,
		botUUID,
	)
	return err
}

// StoreAction resolves raw action data and attaches the result to the bot.
// A handler registered as unique may appear at most once per thread.
func (s *Service) StoreAction(ctx context.Context, botID string, data map[string]any) (Action, error) {
	bot, err := s.GetBot(ctx, botID)
	if err != nil {
		return Action{}, err
	}
	resolved, err := s.resolver.Resolve(data, "")
	if err != nil {
		return Action{}, err
	}
	if resolved.Unique {
		taken, err := s.handlerOnThread(ctx, bot.ThreadID, resolved.Handler)
		if err != nil {
			return Action{}, err
		}
		if taken {
			return Action{}, ErrHandlerTaken
		}
	}
	return s.insertAction(ctx, bot.ID, resolved)
}

// SeedAction stores an action for a trusted internal caller, bypassing the
// alias validation the way console seeding does.
func (s *Service) SeedAction(ctx context.Context, botID, handlerOrAlias string, data map[string]any) (Action, error) {
	bot, err := s.GetBot(ctx, botID)
	if err != nil {
		return Action{}, err
	}
	resolved, err := s.resolver.Resolve(data, handlerOrAlias)
	if err != nil {
		return Action{}, err
	}
	if resolved.Unique {
		taken, err := s.handlerOnThread(ctx, bot.ThreadID, resolved.Handler)
		if err != nil {
			return Action{}, err
		}
		if taken {
			return Action{}, ErrHandlerTaken
		}
	}
	return s.insertAction(ctx, bot.ID, resolved)
}

// UpdateAction re-resolves raw data against the stored action's handler and
// persists the canonical result. The handler itself never changes on update.
func (s *Service) UpdateAction(ctx context.Context, actionID string, data map[string]any) (Action, error) {
	existing, err := s.GetAction(ctx, actionID)
	if err != nil {
		return Action{}, err
	}
	resolved, err := s.resolver.Resolve(data, existing.Handler)
	if err != nil {
		return Action{}, err
	}
	actionUUID, err := dbpkg.ParseUUID(actionID)
	if err != nil {
		return Action{}, err
	}
	row := s.db.QueryRow(ctx, `
		UPDATE bot_actions
		SET match = $2, triggers = $3, admin_only = $4, cooldown = $5,
		    enabled = $6, payload = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING id, bot_id, handler, match, triggers, admin_only, cooldown,
		          enabled, payload, last_triggered_at, created_at, updated_at`,
		actionUUID, resolved.Match.String(), dbpkg.ToText(resolved.Triggers),
		resolved.AdminOnly, resolved.Cooldown, resolved.Enabled,
		payloadText(resolved.Payload),
	)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Action{}, ErrActionNotFound
		}
		return Action{}, err
	}
	return action, nil
}

// GetAction returns a live action by id.
func (s *Service) GetAction(ctx context.Context, actionID string) (Action, error) {
	actionUUID, err := dbpkg.ParseUUID(actionID)
	if err != nil {
		return Action{}, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, bot_id, handler, match, triggers, admin_only, cooldown,
		       enabled, payload, last_triggered_at, created_at, updated_at
		FROM bot_actions WHERE id = $1 AND deleted_at IS NULL`,
		actionUUID,
	)
	action, err := scanAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Action{}, ErrActionNotFound
		}
		return Action{}, err
	}
	return action, nil
}

// ListActions returns a bot's live actions in creation order.
func (s *Service) ListActions(ctx context.Context, botID string) ([]Action, error) {
	botUUID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, bot_id, handler, match, triggers, admin_only, cooldown,
		       enabled, payload, last_triggered_at, created_at, updated_at
		FROM bot_actions WHERE bot_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		botUUID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, action)
	}
	return items, rows.Err()
}

// RemoveAction soft deletes an action.
func (s *Service) RemoveAction(ctx context.Context, actionID string) error {
	actionUUID, err := dbpkg.ParseUUID(actionID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE bot_actions SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		actionUUID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrActionNotFound
	}
	if s.publisher != nil {
		s.publisher.Publish(event.Event{Type: event.TypeActionRemoved, Data: actionID})
	}
	return nil
}

// ListEnabledForThread returns enabled live actions of the thread's enabled
// bots, in action creation order. Implements ActionSource.
func (s *Service) ListEnabledForThread(ctx context.Context, threadID string) ([]ThreadAction, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT b.id, b.thread_id, b.owner_id, b.name, b.enabled, b.cooldown,
		       b.last_triggered_at, b.created_at, b.updated_at,
		       a.id, a.bot_id, a.handler, a.match, a.triggers, a.admin_only,
		       a.cooldown, a.enabled, a.payload, a.last_triggered_at,
		       a.created_at, a.updated_at
		FROM bot_actions a
		JOIN bots b ON b.id = a.bot_id
		WHERE b.thread_id = $1
		  AND a.enabled AND b.enabled
		  AND a.deleted_at IS NULL AND b.deleted_at IS NULL
		ORDER BY a.created_at`,
		threadUUID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ThreadAction
	for rows.Next() {
		item, err := scanThreadAction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// TouchLastTriggered stamps an execution time on the action. Implements
// ActionSource.
func (s *Service) TouchLastTriggered(ctx context.Context, actionID string, at time.Time) error {
	actionUUID, err := dbpkg.ParseUUID(actionID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE bot_actions SET last_triggered_at = $2 WHERE id = $1`,
		actionUUID, pgtype.Timestamptz{Time: at, Valid: true},
	)
	return err
}

// TouchBotLastTriggered stamps an execution time on the bot, starting its
// own cooldown window. Implements ActionSource.
func (s *Service) TouchBotLastTriggered(ctx context.Context, botID string, at time.Time) error {
	botUUID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		UPDATE bots SET last_triggered_at = $2 WHERE id = $1`,
		botUUID, pgtype.Timestamptz{Time: at, Valid: true},
	)
	return err
}

// PurgeDeleted hard deletes bots and actions soft deleted before cutoff.
// Returns the number of actions removed.
func (s *Service) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	cut := pgtype.Timestamptz{Time: cutoff, Valid: true}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM bot_actions WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cut)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.Exec(ctx, `
		DELETE FROM bots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cut); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Service) handlerOnThread(ctx context.Context, threadID, handlerID string) (bool, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return false, err
	}
	var count int64
	err = s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM bot_actions a
		JOIN bots b ON b.id = a.bot_id
		WHERE b.thread_id = $1 AND a.handler = $2
		  AND a.deleted_at IS NULL AND b.deleted_at IS NULL`,
		threadUUID, handlerID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) insertAction(ctx context.Context, botID string, resolved ResolvedAction) (Action, error) {
	botUUID, err := dbpkg.ParseUUID(botID)
	if err != nil {
		return Action{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO bot_actions (bot_id, handler, match, triggers, admin_only, cooldown, enabled, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, bot_id, handler, match, triggers, admin_only, cooldown,
		          enabled, payload, last_triggered_at, created_at, updated_at`,
		botUUID, resolved.Handler, resolved.Match.String(),
		dbpkg.ToText(resolved.Triggers), resolved.AdminOnly,
		resolved.Cooldown, resolved.Enabled, payloadText(resolved.Payload),
	)
	return scanAction(row)
}

func payloadText(payload *string) pgtype.Text {
	if payload == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *payload, Valid: true}
}

func scanBot(row pgx.Row) (Bot, error) {
	var (
		id, threadID, ownerID pgtype.UUID
		name                  string
		enabled               bool
		cooldown              int32
		lastTriggeredAt       pgtype.Timestamptz
		createdAt, updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &threadID, &ownerID, &name, &enabled, &cooldown,
		&lastTriggeredAt, &createdAt, &updatedAt); err != nil {
		return Bot{}, err
	}
	bot := Bot{
		ID:        id.String(),
		ThreadID:  threadID.String(),
		OwnerID:   ownerID.String(),
		Name:      name,
		Enabled:   enabled,
		Cooldown:  int(cooldown),
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}
	if lastTriggeredAt.Valid {
		at := lastTriggeredAt.Time
		bot.LastTriggeredAt = &at
	}
	return bot, nil
}

func scanAction(row pgx.Row) (Action, error) {
	var (
		id, botID            pgtype.UUID
		handler, match       string
		triggers, payload    pgtype.Text
		adminOnly, enabled   bool
		cooldown             int32
		lastTriggeredAt      pgtype.Timestamptz
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &botID, &handler, &match, &triggers, &adminOnly,
		&cooldown, &enabled, &payload, &lastTriggeredAt, &createdAt, &updatedAt); err != nil {
		return Action{}, err
	}
	action := Action{
		ID:        id.String(),
		BotID:     botID.String(),
		Handler:   handler,
		Match:     MatchMethod(match),
		Triggers:  dbpkg.TextToString(triggers),
		AdminOnly: adminOnly,
		Cooldown:  int(cooldown),
		Enabled:   enabled,
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}
	if payload.Valid {
		value := payload.String
		action.Payload = &value
	}
	if lastTriggeredAt.Valid {
		at := lastTriggeredAt.Time
		action.LastTriggeredAt = &at
	}
	return action, nil
}

func scanThreadAction(rows pgx.Rows) (ThreadAction, error) {
	var (
		botUUID, botThreadID, botOwnerID pgtype.UUID
		botName                          string
		botEnabled                       bool
		botCooldown                      int32
		botLastTriggeredAt               pgtype.Timestamptz
		botCreatedAt, botUpdatedAt       pgtype.Timestamptz

		actionID, actionBotID pgtype.UUID
		handler, match        string
		triggers, payload     pgtype.Text
		adminOnly, enabled    bool
		cooldown              int32
		lastTriggeredAt       pgtype.Timestamptz
		createdAt, updatedAt  pgtype.Timestamptz
	)
	if err := rows.Scan(
		&botUUID, &botThreadID, &botOwnerID, &botName, &botEnabled, &botCooldown,
		&botLastTriggeredAt, &botCreatedAt, &botUpdatedAt,
		&actionID, &actionBotID, &handler, &match, &triggers, &adminOnly,
		&cooldown, &enabled, &payload, &lastTriggeredAt, &createdAt, &updatedAt,
	); err != nil {
		return ThreadAction{}, err
	}
	item := ThreadAction{
		Bot: Bot{
			ID:        botUUID.String(),
			ThreadID:  botThreadID.String(),
			OwnerID:   botOwnerID.String(),
			Name:      botName,
			Enabled:   botEnabled,
			Cooldown:  int(botCooldown),
			CreatedAt: botCreatedAt.Time,
			UpdatedAt: botUpdatedAt.Time,
		},
		Action: Action{
			ID:        actionID.String(),
			BotID:     actionBotID.String(),
			Handler:   handler,
			Match:     MatchMethod(match),
			Triggers:  dbpkg.TextToString(triggers),
			AdminOnly: adminOnly,
			Cooldown:  int(cooldown),
			Enabled:   enabled,
			CreatedAt: createdAt.Time,
			UpdatedAt: updatedAt.Time,
		},
	}
	if payload.Valid {
		value := payload.String
		item.Action.Payload = &value
	}
	if botLastTriggeredAt.Valid {
		at := botLastTriggeredAt.Time
		item.Bot.LastTriggeredAt = &at
	}
	if lastTriggeredAt.Valid {
		at := lastTriggeredAt.Time
		item.Action.LastTriggeredAt = &at
	}
	return item, nil
}
