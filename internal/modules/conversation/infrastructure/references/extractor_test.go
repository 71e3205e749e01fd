package references

import (
	"context"
	"strings"
	"testing"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/source/domain/source"

	"github.com/stretchr/testify/require"
)

// fakeFileRepo 只实现引用抽取用到的两个方法
type fakeFileRepo struct {
	files  map[string]*source.SourceFile
	recent []*source.SourceFile
}

func (f *fakeFileRepo) Create(ctx context.Context, file *source.SourceFile) error { return nil }
func (f *fakeFileRepo) GetByID(ctx context.Context, id string) (*source.SourceFile, error) {
	return f.files[id], nil
}
func (f *fakeFileRepo) GetByIDs(ctx context.Context, ids []string) ([]*source.SourceFile, error) {
	var out []*source.SourceFile
	for _, id := range ids {
		if file, ok := f.files[id]; ok {
			out = append(out, file)
		}
	}
	return out, nil
}
func (f *fakeFileRepo) ListByUser(ctx context.Context, userID string) ([]*source.SourceFile, error) {
	return nil, nil
}
func (f *fakeFileRepo) ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*source.SourceFile, error) {
	return f.recent, nil
}
func (f *fakeFileRepo) UpdateStatus(ctx context.Context, id, status, traceback string) error {
	return nil
}
func (f *fakeFileRepo) UpdateSummary(ctx context.Context, id, summary string) error { return nil }
func (f *fakeFileRepo) Delete(ctx context.Context, id string) error                 { return nil }

func completedFile(id, userID, format string) *source.SourceFile {
	return &source.SourceFile{
		Id:      id,
		UserId:  userID,
		Name:    "doc-" + id,
		Format:  format,
		Status:  source.StatusCompleted,
		Summary: "摘要 " + id,
	}
}

func toolMsg(content string) *conversation.ChatMessage {
	return &conversation.ChatMessage{Sender: conversation.SenderTool, Content: content}
}

func TestParseFileIDs(t *testing.T) {
	ids := parseFileIDs(`[{"file_id":"f1","name":"a"},{"file_id":"f2"},{"file_id":" "}]`)
	require.Equal(t, []string{"f1", "f2"}, ids)

	require.Nil(t, parseFileIDs("沒有檢索到相關段落。"))
	require.Nil(t, parseFileIDs("[not json]"))
}

func TestCollectFileIDsDedup(t *testing.T) {
	msgs := []*conversation.ChatMessage{
		toolMsg(`[{"file_id":"f1"},{"file_id":"f2"}]`),
		toolMsg(`[{"file_id":"f2"},{"file_id":"f3"}]`),
	}
	require.Equal(t, []string{"f1", "f2", "f3"}, collectFileIDs(msgs))
}

func TestExtractExplicitIDsWinOverToolOutput(t *testing.T) {
	repo := &fakeFileRepo{files: map[string]*source.SourceFile{
		"f1": completedFile("f1", "u1", source.FormatPDF),
		"f2": completedFile("f2", "u1", source.FormatCSV),
	}}
	e := NewExtractor(repo)

	refs := e.Extract(context.Background(), "u1", []string{"f2"},
		[]*conversation.ChatMessage{toolMsg(`[{"file_id":"f1"}]`)})
	require.Len(t, refs, 1)
	require.Equal(t, "f2", refs[0].ID)
	require.Equal(t, TypeTable, refs[0].Type)
	require.Equal(t, "結構化檔案", refs[0].Source)
}

func TestExtractFromToolMessages(t *testing.T) {
	repo := &fakeFileRepo{files: map[string]*source.SourceFile{
		"f1": completedFile("f1", "u1", source.FormatPDF),
	}}
	e := NewExtractor(repo)

	refs := e.Extract(context.Background(), "u1", nil,
		[]*conversation.ChatMessage{toolMsg(`[{"file_id":"f1","content":"段落"}]`)})
	require.Len(t, refs, 1)
	require.Equal(t, TypeFile, refs[0].Type)
	require.Equal(t, "doc-f1", refs[0].Title)
}

func TestExtractFiltersOwnershipAndStatus(t *testing.T) {
	other := completedFile("f2", "u2", source.FormatPDF)
	pending := completedFile("f3", "u1", source.FormatPDF)
	pending.Status = source.StatusProcessing
	repo := &fakeFileRepo{files: map[string]*source.SourceFile{
		"f1": completedFile("f1", "u1", source.FormatPDF),
		"f2": other,
		"f3": pending,
	}}
	e := NewExtractor(repo)

	refs := e.Extract(context.Background(), "u1", nil,
		[]*conversation.ChatMessage{toolMsg(`[{"file_id":"f2"},{"file_id":"f3"},{"file_id":"f1"}]`)})
	require.Len(t, refs, 1)
	require.Equal(t, "f1", refs[0].ID)
}

func TestExtractNoToolCallsNoReferences(t *testing.T) {
	e := NewExtractor(&fakeFileRepo{})
	require.Nil(t, e.Extract(context.Background(), "u1", nil, nil))
}

func TestExtractFallbackRecentFiles(t *testing.T) {
	repo := &fakeFileRepo{recent: []*source.SourceFile{
		completedFile("f9", "u1", source.FormatPDF),
	}}
	e := NewExtractor(repo)

	// 工具调用过但输出里没有任何 file_id
	refs := e.Extract(context.Background(), "u1", nil,
		[]*conversation.ChatMessage{toolMsg("沒有檢索到相關段落。")})
	require.Len(t, refs, 1)
	require.Equal(t, "f9", refs[0].ID)
}

func TestTrimExcerpt(t *testing.T) {
	short := "簡短摘要"
	require.Equal(t, short, trimExcerpt("  "+short+"  "))

	long := strings.Repeat("字", 250)
	out := trimExcerpt(long)
	require.Equal(t, strings.Repeat("字", 200)+"...", out)
}

func TestMarshalReferences(t *testing.T) {
	require.Equal(t, "", MarshalReferences(nil))

	data := MarshalReferences([]*Reference{{Type: TypeFile, ID: "f1", Title: "t"}})
	require.Contains(t, data, `"id":"f1"`)
}
