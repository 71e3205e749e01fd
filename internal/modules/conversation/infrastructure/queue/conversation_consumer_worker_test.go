package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/infrastructure/pipeline"
	"RAGLink/internal/mq"

	"github.com/stretchr/testify/require"
)

type memMessageRepo struct {
	messages map[int64]*conversation.ChatMessage
	// statuses 按调用顺序记录状态流转
	statuses []string
}

func newMemMessageRepo(msgs ...*conversation.ChatMessage) *memMessageRepo {
	r := &memMessageRepo{messages: map[int64]*conversation.ChatMessage{}}
	for _, m := range msgs {
		r.messages[m.Id] = m
	}
	return r
}

func (r *memMessageRepo) Create(ctx context.Context, m *conversation.ChatMessage) error {
	r.messages[m.Id] = m
	return nil
}

func (r *memMessageRepo) BatchCreate(ctx context.Context, msgs []*conversation.ChatMessage) error {
	for _, m := range msgs {
		r.messages[m.Id] = m
	}
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id int64) (*conversation.ChatMessage, error) {
	return r.messages[id], nil
}

func (r *memMessageRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *memMessageRepo) ListRecentHistory(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *memMessageRepo) ListChildren(ctx context.Context, parentID int64) ([]*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *memMessageRepo) UpdateStatus(ctx context.Context, id int64, status, traceback string) error {
	if m, ok := r.messages[id]; ok {
		m.Status = status
		m.Traceback = traceback
	}
	r.statuses = append(r.statuses, status)
	return nil
}

func (r *memMessageRepo) UpdateContent(ctx context.Context, id int64, content, referencesJson string) error {
	if m, ok := r.messages[id]; ok {
		m.Content = content
		m.ReferencesJson = referencesJson
	}
	return nil
}

func (r *memMessageRepo) SoftDeleteBySession(ctx context.Context, sessionID string) error {
	return nil
}

type stubRunner struct {
	req *pipeline.ConversationRequest
	err error
}

func (s *stubRunner) Execute(ctx context.Context, req *pipeline.ConversationRequest) (*pipeline.ConversationResult, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &pipeline.ConversationResult{AiMessageID: req.AiMessageID, Answer: "好的"}, nil
}

func conversationMsg(t *testing.T, ev ConversationEvent) mq.Message {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return mq.Message{Topic: "conversation", Value: body}
}

func newTestWorker(repo *memMessageRepo, runner ConversationRunner) *ConversationConsumerWorker {
	return NewConversationConsumerWorker(nil, repo, runner, 1)
}

func TestConversationMessageCompletes(t *testing.T) {
	repo := newMemMessageRepo(&conversation.ChatMessage{Id: 7, Status: conversation.StatusPending})
	w := newTestWorker(repo, &stubRunner{})

	err := w.Handle(context.Background(), conversationMsg(t, ConversationEvent{
		UserID: "u-1", SessionID: "s-1", AiMessageID: 7, Question: "營收多少？",
	}))
	require.NoError(t, err)

	require.Equal(t, []string{conversation.StatusProcessing, conversation.StatusCompleted}, repo.statuses)
	require.Equal(t, conversation.StatusCompleted, repo.messages[7].Status)
	require.Empty(t, repo.messages[7].Traceback)
}

func TestConversationMessageFailsWithApology(t *testing.T) {
	repo := newMemMessageRepo(&conversation.ChatMessage{Id: 7, Status: conversation.StatusPending})
	w := newTestWorker(repo, &stubRunner{err: fmt.Errorf("model unavailable")})

	// 管线失败不重投消息，固定话术写给用户，明细留在 traceback
	err := w.Handle(context.Background(), conversationMsg(t, ConversationEvent{
		UserID: "u-1", SessionID: "s-1", AiMessageID: 7, Question: "營收多少？",
	}))
	require.NoError(t, err)

	m := repo.messages[7]
	require.Equal(t, conversation.StatusFailed, m.Status)
	require.Equal(t, failedAnswer, m.Content)
	require.Contains(t, m.Traceback, "model unavailable")
}

func TestConversationCompletedMessageSkipped(t *testing.T) {
	repo := newMemMessageRepo(&conversation.ChatMessage{Id: 7, Status: conversation.StatusCompleted, Content: "舊答案"})
	runner := &stubRunner{}
	w := newTestWorker(repo, runner)

	err := w.Handle(context.Background(), conversationMsg(t, ConversationEvent{
		UserID: "u-1", SessionID: "s-1", AiMessageID: 7, Question: "營收多少？",
	}))
	require.NoError(t, err)
	require.Nil(t, runner.req)
	require.Empty(t, repo.statuses)
	require.Equal(t, "舊答案", repo.messages[7].Content)
}

func TestConversationEventCarriesDataScope(t *testing.T) {
	repo := newMemMessageRepo(&conversation.ChatMessage{Id: 7, Status: conversation.StatusPending})
	runner := &stubRunner{}
	w := newTestWorker(repo, runner)

	err := w.Handle(context.Background(), conversationMsg(t, ConversationEvent{
		UserID: "u-1", SessionID: "s-1", AiMessageID: 7, Question: "營收多少？",
		DataScope: "source", ReferenceFileIDs: []string{"f-1"},
	}))
	require.NoError(t, err)
	require.NotNil(t, runner.req)
	require.Equal(t, pipeline.ScopeSource, runner.req.Scope)
	require.Equal(t, []string{"f-1"}, runner.req.ReferenceFileIDs)
}
