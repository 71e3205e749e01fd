package pipeline

import (
	"context"
	"testing"

	"RAGLink/internal/modules/conversation/domain/conversation"

	"github.com/stretchr/testify/require"
)

type stubMessageRepo struct {
	history []*conversation.ChatMessage
}

func (r *stubMessageRepo) Create(ctx context.Context, m *conversation.ChatMessage) error { return nil }

func (r *stubMessageRepo) BatchCreate(ctx context.Context, msgs []*conversation.ChatMessage) error {
	return nil
}

func (r *stubMessageRepo) GetByID(ctx context.Context, id int64) (*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *stubMessageRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *stubMessageRepo) ListRecentHistory(ctx context.Context, sessionID string, limit int) ([]*conversation.ChatMessage, error) {
	return r.history, nil
}

func (r *stubMessageRepo) ListChildren(ctx context.Context, parentID int64) ([]*conversation.ChatMessage, error) {
	return nil, nil
}

func (r *stubMessageRepo) UpdateStatus(ctx context.Context, id int64, status, traceback string) error {
	return nil
}

func (r *stubMessageRepo) UpdateContent(ctx context.Context, id int64, content, referencesJson string) error {
	return nil
}

func (r *stubMessageRepo) SoftDeleteBySession(ctx context.Context, sessionID string) error {
	return nil
}

func TestBindScopeSource(t *testing.T) {
	p := &ConversationPipeline{}

	prompt, tools, err := p.bindScope(ScopeSource, "u-1")
	require.NoError(t, err)
	require.NotEmpty(t, prompt)
	require.Len(t, tools, 3)

	names := make([]string, 0, len(tools))
	for _, tl := range tools {
		info, err := tl.Info(context.Background())
		require.NoError(t, err)
		names = append(names, info.Name)
	}
	require.ElementsMatch(t, []string{"retrieve_files", "retrieve_chunks", "query_tables"}, names)
}

func TestBindScopeUnknown(t *testing.T) {
	p := &ConversationPipeline{}
	_, _, err := p.bindScope(DataScope("graph"), "u-1")
	require.Error(t, err)
}

func TestLoadContextDefaultsToSourceScope(t *testing.T) {
	p := &ConversationPipeline{messageRepo: &stubMessageRepo{}}

	st, err := p.loadContextNode(context.Background(), &ConversationRequest{
		UserID:      "u-1",
		SessionID:   "s-1",
		AiMessageID: 1,
		Question:    "年度營收多少？",
	})
	require.NoError(t, err)
	require.NoError(t, st.Err)
	require.Equal(t, ScopeSource, st.Scope)
	require.Len(t, st.Tools, 3)
	require.NotEmpty(t, st.SystemPrompt)
}
