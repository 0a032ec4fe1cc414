package repositories

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"hire-realtime/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrSelfConversation     = errors.New("cannot create conversation with self")
)

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, initiatorID, recipientID string) (models.Conversation, bool, error)
	CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (models.Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// FindOrCreateDirect returns the direct conversation between two users,
// creating it when absent. The UNIQUE direct_key makes concurrent callers
// converge on one row.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, initiatorID, recipientID string) (conv models.Conversation, created bool, err error) {
	if initiatorID == recipientID {
		return models.Conversation{}, false, ErrSelfConversation
	}
	key := models.DirectKey(initiatorID, recipientID)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var id string
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (id, is_group, created_by, direct_key) VALUES ($1, FALSE, $2, $3)
        ON CONFLICT (direct_key) DO NOTHING RETURNING id`, uuid.NewString(), initiatorID, key).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err = tx.GetContext(ctx, &id, `SELECT id FROM conversations WHERE direct_key=$1`, key); err != nil {
			return models.Conversation{}, false, err
		}
	case err != nil:
		return models.Conversation{}, false, err
	default:
		created = true
		for _, userID := range []string{initiatorID, recipientID} {
			if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, id, userID); err != nil {
				return models.Conversation{}, false, err
			}
		}
	}

	if conv, err = getConversation(ctx, tx, id); err != nil {
		return models.Conversation{}, false, err
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, false, err
	}
	return conv, created, nil
}

// CreateGroup creates a group conversation and its members atomically.
func (r *ConversationRepo) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (conv models.Conversation, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	id := uuid.NewString()
	if _, err = tx.ExecContext(ctx, `INSERT INTO conversations (id, is_group, title, created_by) VALUES ($1, TRUE, $2, $3)`, id, title, creatorID); err != nil {
		return models.Conversation{}, err
	}

	for _, userID := range groupMembers(creatorID, memberIDs) {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, id, userID); err != nil {
			return models.Conversation{}, err
		}
	}

	if conv, err = getConversation(ctx, tx, id); err != nil {
		return models.Conversation{}, err
	}
	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// GetConversation fetches a conversation with its participants.
func (r *ConversationRepo) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	return getConversation(ctx, r.db, conversationID)
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	err := r.db.SelectContext(ctx, &summaries, `SELECT c.id, c.is_group, c.title, c.created_by, c.created_at, c.last_message_at AS last_active_at
        FROM conversations c
        INNER JOIN conversation_participants p ON p.conversation_id = c.id
        WHERE p.user_id=$1
        ORDER BY c.last_message_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return []models.ConversationSummary{}, nil
	}

	ids := make([]string, 0, len(summaries))
	index := make(map[string]int, len(summaries))
	for i, s := range summaries {
		ids = append(ids, s.ID)
		index[s.ID] = i
	}

	var participants []models.Participant
	if err := r.db.SelectContext(ctx, &participants, `SELECT conversation_id, user_id, joined_at FROM conversation_participants
        WHERE conversation_id = ANY($1) ORDER BY joined_at ASC, user_id ASC`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for _, p := range participants {
		i := index[p.ConversationID]
		summaries[i].Participants = append(summaries[i].Participants, p)
	}

	var last []models.Message
	if err := r.db.SelectContext(ctx, &last, `SELECT DISTINCT ON (conversation_id) `+messageColumns+` FROM messages
        WHERE conversation_id = ANY($1) AND state <> 'deleted'
        ORDER BY conversation_id, created_at DESC, id DESC`, pq.Array(ids)); err != nil {
		return nil, err
	}
	for i := range last {
		msg := last[i]
		summaries[index[msg.ConversationID]].LastMessage = &msg
	}
	return summaries, nil
}

func getConversation(ctx context.Context, q sqlx.QueryerContext, conversationID string) (models.Conversation, error) {
	var conv models.Conversation
	err := sqlx.GetContext(ctx, q, &conv, `SELECT id, is_group, title, created_by, created_at FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	if err := sqlx.SelectContext(ctx, q, &conv.Participants, `SELECT conversation_id, user_id, joined_at FROM conversation_participants
        WHERE conversation_id=$1 ORDER BY joined_at ASC, user_id ASC`, conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// groupMembers ensures the creator is present and dedupes members.
func groupMembers(creatorID string, memberIDs []string) []string {
	set := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
