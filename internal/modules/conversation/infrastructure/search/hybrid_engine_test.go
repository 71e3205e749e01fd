package search

import (
	"context"
	"strings"
	"testing"

	"RAGLink/internal/modules/source/domain/source"

	"github.com/stretchr/testify/require"
)

// fakeChunkRepo 提供子串召回与父块解析，只实现检索路径需要的方法
type fakeChunkRepo struct {
	children []*source.SourceFileChunk
	parents  map[int64]*source.SourceFileChunk
}

func (f *fakeChunkRepo) BatchCreate(ctx context.Context, chunks []*source.SourceFileChunk) error {
	return nil
}
func (f *fakeChunkRepo) GetByIDs(ctx context.Context, ids []int64) ([]*source.SourceFileChunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) ListParentsByFile(ctx context.Context, fileID string) ([]*source.SourceFileChunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) ListChildrenByParent(ctx context.Context, parentID int64) ([]*source.SourceFileChunk, error) {
	return nil, nil
}
func (f *fakeChunkRepo) SearchChildrenBySubstring(ctx context.Context, userID string, fileIDs []string, keyword string, limit int) ([]*source.SourceFileChunk, error) {
	var out []*source.SourceFileChunk
	for _, c := range f.children {
		if len(out) >= limit {
			break
		}
		if strings.Contains(c.Content, keyword) {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeChunkRepo) GetParentOf(ctx context.Context, chunkID int64) (*source.SourceFileChunk, error) {
	return f.parents[chunkID], nil
}
func (f *fakeChunkRepo) DeleteByFile(ctx context.Context, fileID string) error { return nil }
func (f *fakeChunkRepo) ListIDsByFile(ctx context.Context, fileID string) ([]int64, error) {
	return nil, nil
}

// identityReranker 按原顺序取前 topN
type identityReranker struct{}

func (identityReranker) Rerank(ctx context.Context, query string, docs []string, topN int) []int {
	n := topN
	if n > len(docs) {
		n = len(docs)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

func TestParseKeywordList(t *testing.T) {
	require.Equal(t, []string{"營收", "2024"}, parseKeywordList("營收, 2024"))
	require.Equal(t, []string{"營收", "毛利率"}, parseKeywordList("營收，毛利率"))
	require.Equal(t, []string{"營收"}, parseKeywordList(`"營收", ,`))
	require.Nil(t, parseKeywordList("  ,  "))
}

func TestExtractKeywordsFallbackWithoutModel(t *testing.T) {
	e := NewHybridEngine(&fakeChunkRepo{}, nil, nil, identityReranker{}, nil)
	require.Equal(t, []string{"年度營收"}, e.ExtractKeywords(context.Background(), " 年度營收 "))
}

func TestRetrieveLexicalOnly(t *testing.T) {
	child := &source.SourceFileChunk{Id: 11, Content: "2024 年度營收為十億"}
	parent := &source.SourceFileChunk{Id: 1, Content: "完整章節內容"}
	repo := &fakeChunkRepo{
		children: []*source.SourceFileChunk{child},
		parents:  map[int64]*source.SourceFileChunk{11: parent},
	}
	e := NewHybridEngine(repo, nil, nil, identityReranker{}, nil)

	got := e.Retrieve(context.Background(), "u1", "年度營收", nil)
	require.Len(t, got, 1)
	require.Equal(t, int64(11), got[0].Chunk.Id)
	require.Equal(t, int64(1), got[0].Parent.Id)
}

func TestRetrieveDedupsByParent(t *testing.T) {
	parent := &source.SourceFileChunk{Id: 1, Content: "父塊"}
	c1 := &source.SourceFileChunk{Id: 11, Content: "營收 第一段"}
	c2 := &source.SourceFileChunk{Id: 12, Content: "營收 第二段"}
	repo := &fakeChunkRepo{
		children: []*source.SourceFileChunk{c1, c2},
		parents:  map[int64]*source.SourceFileChunk{11: parent, 12: parent},
	}
	e := NewHybridEngine(repo, nil, nil, identityReranker{}, nil)

	got := e.Retrieve(context.Background(), "u1", "營收", nil)
	require.Len(t, got, 1)
	require.Equal(t, int64(11), got[0].Chunk.Id)
}

func TestRetrieveParentFallbackToSelf(t *testing.T) {
	c := &source.SourceFileChunk{Id: 11, Content: "營收段落"}
	repo := &fakeChunkRepo{children: []*source.SourceFileChunk{c}}
	e := NewHybridEngine(repo, nil, nil, identityReranker{}, nil)

	got := e.Retrieve(context.Background(), "u1", "營收", nil)
	require.Len(t, got, 1)
	require.Equal(t, got[0].Chunk, got[0].Parent)
}

func TestRetrieveNothingFound(t *testing.T) {
	e := NewHybridEngine(&fakeChunkRepo{}, nil, nil, identityReranker{}, nil)
	require.Nil(t, e.Retrieve(context.Background(), "u1", "毫無命中", nil))
}
