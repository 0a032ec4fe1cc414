package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	grpcclient "hire-realtime/internal/grpc"
	"hire-realtime/internal/llm"
	"hire-realtime/internal/models"
	"hire-realtime/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) FindOrCreateDirect(ctx context.Context, initiatorID, recipientID string) (models.Conversation, bool, error) {
	args := m.Called(ctx, initiatorID, recipientID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Bool(1), args.Error(2)
}

func (m *ConversationRepositoryMock) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (models.Conversation, error) {
	args := m.Called(ctx, creatorID, title, memberIDs)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, conversationID, senderID string, content models.Content, isForwarded bool) (models.Message, error) {
	args := m.Called(ctx, conversationID, senderID, content, isForwarded)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) UpdateMessage(ctx context.Context, messageID string, content models.Content) (models.Message, error) {
	args := m.Called(ctx, messageID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type EvaluationRepositoryMock struct {
	mock.Mock
}

func (m *EvaluationRepositoryMock) CreateJob(ctx context.Context, job *models.EvaluationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *EvaluationRepositoryMock) GetJob(ctx context.Context, jobID string) (models.EvaluationJob, error) {
	args := m.Called(ctx, jobID)
	var job models.EvaluationJob
	if val := args.Get(0); val != nil {
		job = val.(models.EvaluationJob)
	}
	return job, args.Error(1)
}

func (m *EvaluationRepositoryMock) UpdateProgress(ctx context.Context, jobID string, update repositories.JobUpdate) error {
	args := m.Called(ctx, jobID, update)
	return args.Error(0)
}

func (m *EvaluationRepositoryMock) CompleteJob(ctx context.Context, jobID string, result models.EvaluationResult) error {
	args := m.Called(ctx, jobID, result)
	return args.Error(0)
}

func (m *EvaluationRepositoryMock) FailJob(ctx context.Context, jobID, reason string) error {
	args := m.Called(ctx, jobID, reason)
	return args.Error(0)
}

func (m *EvaluationRepositoryMock) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	args := m.Called(ctx)
	var counts map[models.JobStatus]int
	if val := args.Get(0); val != nil {
		counts = val.(map[models.JobStatus]int)
	}
	return counts, args.Error(1)
}

func (m *EvaluationRepositoryMock) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, cutoff, limit)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *EvaluationRepositoryMock) DeleteJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *EvaluationRepositoryMock) ListUnfinished(ctx context.Context, limit int) ([]models.EvaluationJob, error) {
	args := m.Called(ctx, limit)
	var jobs []models.EvaluationJob
	if val := args.Get(0); val != nil {
		jobs = val.([]models.EvaluationJob)
	}
	return jobs, args.Error(1)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (grpcclient.Identity, error) {
	args := m.Called(ctx, token)
	var identity grpcclient.Identity
	if val := args.Get(0); val != nil {
		identity = val.(grpcclient.Identity)
	}
	return identity, args.Error(1)
}

type ScorerMock struct {
	mock.Mock
}

func (m *ScorerMock) Score(ctx context.Context, model, prompt string) (string, error) {
	args := m.Called(ctx, model, prompt)
	return args.String(0), args.Error(1)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.EvaluationRepository = (*EvaluationRepositoryMock)(nil)
var _ llm.Scorer = (*ScorerMock)(nil)
var _ interface {
	ValidateToken(context.Context, string) (grpcclient.Identity, error)
} = (*TokenValidatorMock)(nil)
