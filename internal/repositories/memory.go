package repositories

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hire-realtime/internal/models"
)

// MemoryStore keeps conversations, messages and evaluation jobs in process.
// It backs tests and single-node development runs without Postgres.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*memConversation
	directIndex   map[string]string
	messages      map[string]*memMessage
	jobs          map[string]*models.EvaluationJob
	seq           int64
	now           func() time.Time
}

type memConversation struct {
	conv       models.Conversation
	lastActive time.Time
	seq        int64
}

type memMessage struct {
	msg models.Message
	seq int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*memConversation),
		directIndex:   make(map[string]string),
		messages:      make(map[string]*memMessage),
		jobs:          make(map[string]*models.EvaluationJob),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Conversations

func (s *MemoryStore) FindOrCreateDirect(ctx context.Context, initiatorID, recipientID string) (models.Conversation, bool, error) {
	if initiatorID == recipientID {
		return models.Conversation{}, false, ErrSelfConversation
	}
	key := models.DirectKey(initiatorID, recipientID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.directIndex[key]; ok {
		return cloneConversation(s.conversations[id].conv), false, nil
	}

	now := s.now()
	conv := models.Conversation{
		ID:        uuid.NewString(),
		CreatedBy: initiatorID,
		CreatedAt: now,
		Participants: []models.Participant{
			{UserID: initiatorID, JoinedAt: now},
			{UserID: recipientID, JoinedAt: now},
		},
	}
	s.storeConversation(conv)
	s.directIndex[key] = conv.ID
	return cloneConversation(conv), true, nil
}

func (s *MemoryStore) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv := models.Conversation{
		ID:        uuid.NewString(),
		IsGroup:   true,
		Title:     &title,
		CreatedBy: creatorID,
		CreatedAt: now,
	}
	for _, id := range groupMembers(creatorID, memberIDs) {
		conv.Participants = append(conv.Participants, models.Participant{UserID: id, JoinedAt: now})
	}
	s.storeConversation(conv)
	return cloneConversation(conv), nil
}

func (s *MemoryStore) storeConversation(conv models.Conversation) {
	for i := range conv.Participants {
		conv.Participants[i].ConversationID = conv.ID
	}
	s.seq++
	s.conversations[conv.ID] = &memConversation{conv: conv, lastActive: conv.CreatedAt, seq: s.seq}
}

func (s *MemoryStore) GetConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return models.Conversation{}, ErrConversationNotFound
	}
	return cloneConversation(c.conv), nil
}

func (s *MemoryStore) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return false, nil
	}
	return c.conv.HasParticipant(userID), nil
}

func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*memConversation
	for _, c := range s.conversations {
		if c.conv.HasParticipant(userID) {
			found = append(found, c)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].lastActive.Equal(found[j].lastActive) {
			return found[i].lastActive.After(found[j].lastActive)
		}
		return found[i].seq > found[j].seq
	})

	summaries := make([]models.ConversationSummary, 0, len(found))
	for _, c := range found {
		summary := models.ConversationSummary{Conversation: cloneConversation(c.conv), LastActiveAt: c.lastActive}
		if last := s.latestMessage(c.conv.ID); last != nil {
			msg := last.msg
			summary.LastMessage = &msg
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *MemoryStore) latestMessage(conversationID string) *memMessage {
	var latest *memMessage
	for _, m := range s.messages {
		if m.msg.ConversationID != conversationID || m.msg.IsDeleted() {
			continue
		}
		if latest == nil || m.seq > latest.seq {
			latest = m
		}
	}
	return latest
}

// Messages

func (s *MemoryStore) CreateMessage(ctx context.Context, conversationID, senderID string, content models.Content, isForwarded bool) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return models.Message{}, ErrConversationNotFound
	}

	now := s.now()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		IsForwarded:    isForwarded,
		State:          models.MessageActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.seq++
	s.messages[msg.ID] = &memMessage{msg: msg, seq: s.seq}
	c.lastActive = now
	c.seq = s.seq
	return msg, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[messageID]
	if !ok {
		return models.Message{}, ErrMessageNotFound
	}
	return m.msg, nil
}

func (s *MemoryStore) UpdateMessage(ctx context.Context, messageID string, content models.Content) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.msg.IsDeleted() {
		return models.Message{}, ErrMessageNotFound
	}
	m.msg.Content = content
	m.msg.State = models.MessageEdited
	m.msg.UpdatedAt = s.now()
	return m.msg, nil
}

func (s *MemoryStore) DeleteMessage(ctx context.Context, messageID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok || m.msg.IsDeleted() {
		return models.Message{}, ErrMessageNotFound
	}
	now := s.now()
	m.msg.State = models.MessageDeleted
	m.msg.DeletedAt = &now
	m.msg.UpdatedAt = now
	return m.msg, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*memMessage
	for _, m := range s.messages {
		if m.msg.ConversationID == conversationID && !m.msg.IsDeleted() {
			found = append(found, m)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq > found[j].seq })

	msgs := []models.Message{}
	for i := offset; i < len(found) && len(msgs) < limit; i++ {
		msgs = append(msgs, found[i].msg)
	}
	return msgs, nil
}

// Evaluation jobs

func (s *MemoryStore) CreateJob(ctx context.Context, job *models.EvaluationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	stored := *job
	s.jobs[job.ID] = &stored
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, jobID string) (models.EvaluationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return models.EvaluationJob{}, ErrJobNotFound
	}
	return *job, nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, jobID string, u JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.liveJob(jobID)
	if err != nil {
		return err
	}
	job.Step, job.Status, job.Progress = u.Step, u.Status, u.Progress
	job.Attempts, job.NextRetryAt, job.LastModel = u.Attempts, u.NextRetryAt, u.LastModel
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, jobID string, result models.EvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.liveJob(jobID)
	if err != nil {
		return err
	}
	now := s.now()
	job.Step, job.Status, job.Progress = models.StepCompleted, models.JobCompleted, 100
	job.Result = &result
	job.LastModel = result.Model
	job.NextRetryAt = nil
	job.Error = ""
	job.UpdatedAt, job.CompletedAt = now, &now
	return nil
}

func (s *MemoryStore) FailJob(ctx context.Context, jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.liveJob(jobID)
	if err != nil {
		return err
	}
	now := s.now()
	job.Step, job.Status = models.StepFailed, models.JobFailed
	job.Error = reason
	job.NextRetryAt = nil
	job.UpdatedAt, job.CompletedAt = now, &now
	return nil
}

func (s *MemoryStore) liveJob(jobID string) (*models.EvaluationJob, error) {
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Step.IsTerminal() {
		return nil, ErrJobFinalized
	}
	return job, nil
}

func (s *MemoryStore) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[models.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) ListCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var done []*models.EvaluationJob
	for _, job := range s.jobs {
		if job.Step == models.StepCompleted && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			done = append(done, job)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].CompletedAt.Before(*done[j].CompletedAt) })

	ids := []string{}
	for _, job := range done {
		if len(ids) == limit {
			break
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (s *MemoryStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[jobID]; !ok {
		return ErrJobNotFound
	}
	delete(s.jobs, jobID)
	return nil
}

func (s *MemoryStore) ListUnfinished(ctx context.Context, limit int) ([]models.EvaluationJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []models.EvaluationJob{}
	for _, job := range s.jobs {
		if !job.Step.IsTerminal() {
			jobs = append(jobs, *job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return strings.Compare(jobs[i].ID, jobs[j].ID) < 0
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func cloneConversation(conv models.Conversation) models.Conversation {
	out := conv
	out.Participants = append([]models.Participant(nil), conv.Participants...)
	return out
}
