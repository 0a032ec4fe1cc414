package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"hire-realtime/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, conversation_id, sender_id, content, is_forwarded, state, created_at, updated_at, deleted_at`

// MessageRepository abstracts message persistence.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID, senderID string, content models.Content, isForwarded bool) (models.Message, error)
	GetMessage(ctx context.Context, messageID string) (models.Message, error)
	UpdateMessage(ctx context.Context, messageID string, content models.Content) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) (models.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error)
}

// MessageRepo implements MessageRepository using sqlx.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo builds a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage inserts a message and bumps the conversation activity time.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID, senderID string, content models.Content, isForwarded bool) (msg models.Message, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (id, conversation_id, sender_id, content, is_forwarded, state)
        VALUES ($1, $2, $3, $4, $5, 'active') RETURNING `+messageColumns,
		uuid.NewString(), conversationID, senderID, content, isForwarded).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at=$2 WHERE id=$1`, conversationID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// GetMessage fetches a message regardless of state.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateMessage replaces content of a live message and marks it edited.
func (r *MessageRepo) UpdateMessage(ctx context.Context, messageID string, content models.Content) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET content=$2, state='edited', updated_at=NOW()
        WHERE id=$1 AND state <> 'deleted' RETURNING `+messageColumns, messageID, content).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessage soft-deletes a live message.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `UPDATE messages SET state='deleted', deleted_at=NOW(), updated_at=NOW()
        WHERE id=$1 AND state <> 'deleted' RETURNING `+messageColumns, messageID).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns non-deleted messages newest first.
func (r *MessageRepo) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM messages
        WHERE conversation_id=$1 AND state <> 'deleted'
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`, conversationID, limit, offset)
	return msgs, err
}
