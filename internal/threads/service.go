package threads

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
	ErrThreadNotFound  = errors.New("thread not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotParticipant  = errors.New("not a thread participant")
)

// Service persists threads, participants and messages, and publishes
// message-created events to the hub.
type Service struct {
	db        dbpkg.Querier
	logger    *slog.Logger
	publisher event.Publisher
}

// NewService creates a thread service.
func NewService(log *slog.Logger, querier dbpkg.Querier, publishers ...event.Publisher) *Service {
	if log == nil {
		log = slog.Default()
	}
	var publisher event.Publisher
	if len(publishers) > 0 {
		publisher = publishers[0]
	}
	return &Service{
		db:        querier,
		logger:    log.With(slog.String("service", "threads")),
		publisher: publisher,
	}
}

// CreateThread creates a thread. Private threads never carry the bots flag.
func (s *Service) CreateThread(ctx context.Context, input CreateThreadInput) (Thread, error) {
	if s.db == nil {
		return Thread{}, fmt.Errorf("thread store not configured")
	}
	chatBots := input.ChatBots && input.Group
	row := s.db.QueryRow(ctx, `
		INSERT INTO threads (subject, "group", chat_bots)
		VALUES ($1, $2, $3)
		RETURNING id, subject, "group", chat_bots, created_at, updated_at`,
		strings.TrimSpace(input.Subject), input.Group, chatBots,
	)
	return scanThread(row)
}

// GetThread returns a live thread by id.
func (s *Service) GetThread(ctx context.Context, threadID string) (Thread, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return Thread{}, err
	}
	row := s.db.QueryRow(ctx, `
		SELECT id, subject, "group", chat_bots, created_at, updated_at
		FROM threads WHERE id = $1 AND deleted_at IS NULL`,
		threadUUID,
	)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Thread{}, ErrThreadNotFound
		}
		return Thread{}, err
	}
	return thread, nil
}

// ListThreads returns all live threads, newest first.
func (s *Service) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, subject, "group", chat_bots, created_at, updated_at
		FROM threads WHERE deleted_at IS NULL
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, thread)
	}
	return items, rows.Err()
}

// SetChatBots toggles the bots feature on a group thread.
func (s *Service) SetChatBots(ctx context.Context, threadID string, enabled bool) error {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE threads SET chat_bots = $2, updated_at = now()
		WHERE id = $1 AND "group" AND deleted_at IS NULL`,
		threadUUID, enabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// ArchiveThread soft deletes a thread.
func (s *Service) ArchiveThread(ctx context.Context, threadID string) error {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE threads SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
		threadUUID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrThreadNotFound
	}
	if s.publisher != nil {
		s.publisher.Publish(event.Event{Type: event.TypeThreadArchived, Data: threadID})
	}
	return nil
}

// AddParticipant attaches an owner to a thread, updating the admin flag when
// the participant already exists.
func (s *Service) AddParticipant(ctx context.Context, threadID, ownerID string, admin bool) (Participant, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return Participant{}, err
	}
	ownerUUID, err := dbpkg.ParseUUID(ownerID)
	if err != nil {
		return Participant{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO participants (thread_id, owner_id, admin)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id, owner_id) DO UPDATE SET admin = EXCLUDED.admin
		RETURNING id, thread_id, owner_id, admin, created_at`,
		threadUUID, ownerUUID, admin,
	)
	return scanParticipant(row)
}

// IsAdmin reports whether ownerID administers the thread.
func (s *Service) IsAdmin(ctx context.Context, threadID, ownerID string) (bool, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return false, err
	}
	ownerUUID, err := dbpkg.ParseUUID(ownerID)
	if err != nil {
		return false, err
	}
	var admin bool
	err = s.db.QueryRow(ctx, `
		SELECT admin FROM participants WHERE thread_id = $1 AND owner_id = $2`,
		threadUUID, ownerUUID,
	).Scan(&admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return admin, nil
}

// ListParticipants returns a thread's participants.
func (s *Service) ListParticipants(ctx context.Context, threadID string) ([]Participant, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, thread_id, owner_id, admin, created_at
		FROM participants WHERE thread_id = $1
		ORDER BY created_at`,
		threadUUID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Participant
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, participant)
	}
	return items, rows.Err()
}

// StoreMessage persists a message and publishes the new-message event with
// the owning thread attached.
func (s *Service) StoreMessage(ctx context.Context, input StoreMessageInput) (Message, error) {
	thread, err := s.GetThread(ctx, input.ThreadID)
	if err != nil {
		return Message{}, err
	}
	threadUUID, err := dbpkg.ParseUUID(input.ThreadID)
	if err != nil {
		return Message{}, err
	}
	senderUUID, err := dbpkg.ParseUUID(input.SenderID)
	if err != nil {
		return Message{}, err
	}
	messageType := input.Type
	if messageType == "" {
		messageType = MessageTypeText
	}
	if !messageType.Valid() {
		return Message{}, fmt.Errorf("invalid message type: %s", input.Type)
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO messages (thread_id, sender_id, type, body, from_bot)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, thread_id, sender_id, type, body, from_bot, created_at`,
		threadUUID, senderUUID, string(messageType), input.Body, input.FromBot,
	)
	message, err := scanMessage(row)
	if err != nil {
		return Message{}, err
	}
	if s.publisher != nil {
		s.publisher.Publish(event.Event{
			Type: event.TypeMessageCreated,
			Data: NewMessageEvent{Thread: thread, Message: message},
		})
	}
	return message, nil
}

// ListMessages returns a thread's live messages oldest first.
func (s *Service) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	threadUUID, err := dbpkg.ParseUUID(threadID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, thread_id, sender_id, type, body, from_bot, created_at
		FROM messages WHERE thread_id = $1 AND deleted_at IS NULL
		ORDER BY created_at`,
		threadUUID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, message)
	}
	return items, rows.Err()
}

// PurgeArchived hard deletes threads and messages soft deleted before cutoff.
// Returns the number of threads removed.
func (s *Service) PurgeArchived(ctx context.Context, cutoff time.Time) (int64, error) {
	cut := pgtype.Timestamptz{Time: cutoff, Valid: true}
	if _, err := s.db.Exec(ctx, `
		DELETE FROM messages WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cut); err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `
		DELETE FROM threads WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cut)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanThread(row pgx.Row) (Thread, error) {
	var (
		id                   pgtype.UUID
		subject              string
		group, chatBots      bool
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &subject, &group, &chatBots, &createdAt, &updatedAt); err != nil {
		return Thread{}, err
	}
	return Thread{
		ID:        id.String(),
		Subject:   subject,
		Group:     group,
		ChatBots:  chatBots,
		CreatedAt: createdAt.Time,
		UpdatedAt: updatedAt.Time,
	}, nil
}

func scanParticipant(row pgx.Row) (Participant, error) {
	var (
		id, threadID, ownerID pgtype.UUID
		admin                 bool
		createdAt             pgtype.Timestamptz
	)
	if err := row.Scan(&id, &threadID, &ownerID, &admin, &createdAt); err != nil {
		return Participant{}, err
	}
	return Participant{
		ID:        id.String(),
		ThreadID:  threadID.String(),
		OwnerID:   ownerID.String(),
		Admin:     admin,
		CreatedAt: createdAt.Time,
	}, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		id, threadID, senderID pgtype.UUID
		messageType, body      string
		fromBot                bool
		createdAt              pgtype.Timestamptz
	)
	if err := row.Scan(&id, &threadID, &senderID, &messageType, &body, &fromBot, &createdAt); err != nil {
		return Message{}, err
	}
	return Message{
		ID:        id.String(),
		ThreadID:  threadID.String(),
		SenderID:  senderID.String(),
		Type:      MessageType(messageType),
		Body:      body,
		FromBot:   fromBot,
		CreatedAt: createdAt.Time,
	}, nil
}
