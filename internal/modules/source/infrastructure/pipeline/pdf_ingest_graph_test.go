package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"RAGLink/internal/gateway/embedding"
	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/pdfext"

	"github.com/stretchr/testify/require"
)

type memFileRepo struct {
	files     map[string]*source.SourceFile
	summaries map[string]string
}

func newMemFileRepo(files ...*source.SourceFile) *memFileRepo {
	r := &memFileRepo{files: map[string]*source.SourceFile{}, summaries: map[string]string{}}
	for _, f := range files {
		r.files[f.Id] = f
	}
	return r
}

func (r *memFileRepo) Create(ctx context.Context, file *source.SourceFile) error {
	r.files[file.Id] = file
	return nil
}

func (r *memFileRepo) GetByID(ctx context.Context, id string) (*source.SourceFile, error) {
	return r.files[id], nil
}

func (r *memFileRepo) GetByIDs(ctx context.Context, ids []string) ([]*source.SourceFile, error) {
	var out []*source.SourceFile
	for _, id := range ids {
		if f, ok := r.files[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *memFileRepo) ListByUser(ctx context.Context, userID string) ([]*source.SourceFile, error) {
	return nil, nil
}

func (r *memFileRepo) ListCompletedByUser(ctx context.Context, userID string, limit int) ([]*source.SourceFile, error) {
	return nil, nil
}

func (r *memFileRepo) UpdateStatus(ctx context.Context, id string, status string, traceback string) error {
	if f, ok := r.files[id]; ok {
		f.Status = status
		f.Traceback = traceback
	}
	return nil
}

func (r *memFileRepo) UpdateSummary(ctx context.Context, id string, summary string) error {
	r.summaries[id] = summary
	return nil
}

func (r *memFileRepo) Delete(ctx context.Context, id string) error {
	delete(r.files, id)
	return nil
}

// memChunkRepo 记录事件顺序，BatchCreate 模拟自增主键
type memChunkRepo struct {
	chunks map[int64]*source.SourceFileChunk
	nextID int64
	events *[]string
}

func newMemChunkRepo(events *[]string) *memChunkRepo {
	return &memChunkRepo{chunks: map[int64]*source.SourceFileChunk{}, nextID: 1, events: events}
}

func (r *memChunkRepo) BatchCreate(ctx context.Context, chunks []*source.SourceFileChunk) error {
	*r.events = append(*r.events, "chunks.create")
	for _, c := range chunks {
		c.Id = r.nextID
		r.nextID++
		r.chunks[c.Id] = c
	}
	return nil
}

func (r *memChunkRepo) GetByIDs(ctx context.Context, ids []int64) ([]*source.SourceFileChunk, error) {
	var out []*source.SourceFileChunk
	for _, id := range ids {
		if c, ok := r.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memChunkRepo) ListParentsByFile(ctx context.Context, fileID string) ([]*source.SourceFileChunk, error) {
	var out []*source.SourceFileChunk
	for _, c := range r.chunks {
		if c.FileId == fileID && c.IsParent() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memChunkRepo) ListChildrenByParent(ctx context.Context, parentID int64) ([]*source.SourceFileChunk, error) {
	var out []*source.SourceFileChunk
	for _, c := range r.chunks {
		if c.ParentId.Valid && c.ParentId.Int64 == parentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memChunkRepo) SearchChildrenBySubstring(ctx context.Context, userID string, fileIDs []string, keyword string, limit int) ([]*source.SourceFileChunk, error) {
	return nil, nil
}

func (r *memChunkRepo) GetParentOf(ctx context.Context, chunkID int64) (*source.SourceFileChunk, error) {
	c, ok := r.chunks[chunkID]
	if !ok || !c.ParentId.Valid {
		return nil, nil
	}
	return r.chunks[c.ParentId.Int64], nil
}

func (r *memChunkRepo) DeleteByFile(ctx context.Context, fileID string) error {
	*r.events = append(*r.events, "chunks.delete")
	for id, c := range r.chunks {
		if c.FileId == fileID {
			delete(r.chunks, id)
		}
	}
	return nil
}

func (r *memChunkRepo) ListIDsByFile(ctx context.Context, fileID string) ([]int64, error) {
	var out []int64
	for id, c := range r.chunks {
		if c.FileId == fileID {
			out = append(out, id)
		}
	}
	return out, nil
}

type memVectorStore struct {
	items  map[string]vectordb.UpsertItem
	events *[]string
}

func newMemVectorStore(events *[]string) *memVectorStore {
	return &memVectorStore{items: map[string]vectordb.UpsertItem{}, events: events}
}

func (s *memVectorStore) Upsert(ctx context.Context, items []vectordb.UpsertItem) ([]string, error) {
	*s.events = append(*s.events, "vectors.upsert")
	ids := make([]string, 0, len(items))
	for _, it := range items {
		s.items[it.RefID] = it
		ids = append(ids, it.RefID)
	}
	return ids, nil
}

func (s *memVectorStore) DeleteByFile(ctx context.Context, userID, fileID string) error {
	*s.events = append(*s.events, "vectors.delete")
	for ref, it := range s.items {
		if it.FileID == fileID && it.UserID == userID {
			delete(s.items, ref)
		}
	}
	return nil
}

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) ExtractText(path string) (string, error) { return e.text, e.err }

// 段落切父块、空格切子块，足够驱动管线
type stubParentChunker struct{}

func (stubParentChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubChildSplitter struct{}

func (stubChildSplitter) Split(ctx context.Context, text string) ([]string, error) {
	return strings.Fields(text), nil
}

type stubSummarizer struct{}

func (stubSummarizer) SummarizeDocument(ctx context.Context, chunks []string) (string, error) {
	return fmt.Sprintf("共 %d 段的摘要", len(chunks)), nil
}

func newTestPDFPipeline(t *testing.T, fileRepo *memFileRepo, extractor stubExtractor) (*PDFIngestPipeline, *memChunkRepo, *memVectorStore, *[]string) {
	t.Helper()
	events := &[]string{}
	chunkRepo := newMemChunkRepo(events)
	vs := newMemVectorStore(events)
	p, err := NewPDFIngestPipeline(
		fileRepo, chunkRepo,
		extractor, stubParentChunker{}, stubChildSplitter{}, stubSummarizer{},
		embedding.NewMockEmbedder(8), vs, 8,
	)
	require.NoError(t, err)
	return p, chunkRepo, vs, events
}

func pdfTestFile() *source.SourceFile {
	return &source.SourceFile{
		Id:     "f-1",
		UserId: "u-1",
		Name:   "report.pdf",
		Format: source.FormatPDF,
		Path:   "/tmp/report.pdf",
		Status: source.StatusProcessing,
	}
}

func TestPDFIngestNoExtractableText(t *testing.T) {
	file := pdfTestFile()
	fileRepo := newMemFileRepo(file)
	p, chunkRepo, vs, _ := newTestPDFPipeline(t, fileRepo, stubExtractor{err: pdfext.ErrNoExtractableText})

	res, err := p.Execute(context.Background(), &PDFIngestRequest{FileID: file.Id, UserID: file.UserId})
	require.NoError(t, err)
	require.NoError(t, res.Err)
	require.Zero(t, res.ParentChunks)
	require.Zero(t, res.ChildChunks)
	require.Zero(t, res.VectorsOK)

	require.Equal(t, "PDF 檔案 report.pdf 沒有可提取的內容，請使用其他方式提取內容。", fileRepo.summaries[file.Id])
	require.Empty(t, chunkRepo.chunks)
	require.Empty(t, vs.items)
}

func TestPDFIngestClearsBeforeRebuild(t *testing.T) {
	file := pdfTestFile()
	fileRepo := newMemFileRepo(file)
	text := "第一段 甲 乙\n\n第二段 丙 丁"
	p, chunkRepo, vs, events := newTestPDFPipeline(t, fileRepo, stubExtractor{text: text})

	req := &PDFIngestRequest{FileID: file.Id, UserID: file.UserId}
	res, err := p.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, res.ParentChunks)

	// 旧数据清理必须发生在写入之前
	order := map[string]int{}
	for i, ev := range *events {
		if _, seen := order[ev]; !seen {
			order[ev] = i
		}
	}
	require.Less(t, order["vectors.delete"], order["chunks.create"])
	require.Less(t, order["chunks.delete"], order["chunks.create"])
	require.Less(t, order["chunks.create"], order["vectors.upsert"])

	// 消息重投：重跑一遍不产生重复分块和向量
	chunksAfterFirst := len(chunkRepo.chunks)
	vectorsAfterFirst := len(vs.items)
	_, err = p.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, chunkRepo.chunks, chunksAfterFirst)
	require.Len(t, vs.items, vectorsAfterFirst)
}

func TestPDFIngestParentChildLinkage(t *testing.T) {
	file := pdfTestFile()
	fileRepo := newMemFileRepo(file)
	text := "第一段 甲 乙 丙\n\n第二段 丁"
	p, chunkRepo, _, _ := newTestPDFPipeline(t, fileRepo, stubExtractor{text: text})

	_, err := p.Execute(context.Background(), &PDFIngestRequest{FileID: file.Id, UserID: file.UserId})
	require.NoError(t, err)

	parents := map[int64]bool{}
	for _, c := range chunkRepo.chunks {
		require.Equal(t, file.Id, c.FileId)
		require.Equal(t, file.UserId, c.UserId)
		if c.IsParent() {
			parents[c.Id] = true
		}
	}
	require.Len(t, parents, 2)

	// 每个子块都挂在同文件的某个父块下
	children := 0
	for _, c := range chunkRepo.chunks {
		if c.IsParent() {
			continue
		}
		children++
		require.True(t, parents[c.ParentId.Int64])
	}
	require.Equal(t, 6, children)
}
