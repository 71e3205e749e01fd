package pipeline

import (
	"context"
	"fmt"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// 管线依赖取窄接口。生产实现依次为 pdfext.Extractor、chunking.SemanticChunker、
// chunking.ChildSplitter、summary.Summarizer、vectordb.MilvusStore
type (
	TextExtractor interface {
		ExtractText(path string) (string, error)
	}
	ParentChunker interface {
		Chunk(ctx context.Context, text string) ([]string, error)
	}
	ChildSegmenter interface {
		Split(ctx context.Context, text string) ([]string, error)
	}
	DocSummarizer interface {
		SummarizeDocument(ctx context.Context, chunks []string) (string, error)
	}
	ChunkVectorStore interface {
		Upsert(ctx context.Context, items []vectordb.UpsertItem) ([]string, error)
		DeleteByFile(ctx context.Context, userID, fileID string) error
	}
)

type PDFIngestRequest struct {
	FileID string
	UserID string
}

type PDFIngestResult struct {
	FileID       string `json:"file_id"`
	ParentChunks int    `json:"parent_chunks"`
	ChildChunks  int    `json:"child_chunks"`
	VectorsOK    int    `json:"vectors_ok"`
	DurationMs   int64  `json:"duration_ms"`
	Err          error  `json:"-"`
}

// PDFIngestPipeline 完整的 PDF 入库流程：
// 提文本 → 语义父块 → map-reduce 摘要 → 子块切分 → 向量化 → 落 MySQL + Milvus
type PDFIngestPipeline struct {
	fileRepo  repository.SourceFileRepository
	chunkRepo repository.SourceFileChunkRepository

	extractor     TextExtractor
	parentChunker ParentChunker
	childSplitter ChildSegmenter
	summarizer    DocSummarizer
	embedder      embedding.Embedder
	vs            ChunkVectorStore
	vectorDim     int

	r compose.Runnable[*PDFIngestRequest, *PDFIngestResult]
}

func NewPDFIngestPipeline(
	fileRepo repository.SourceFileRepository,
	chunkRepo repository.SourceFileChunkRepository,
	extractor TextExtractor,
	parentChunker ParentChunker,
	childSplitter ChildSegmenter,
	summarizer DocSummarizer,
	embedder embedding.Embedder,
	vs ChunkVectorStore,
	vectorDim int,
) (*PDFIngestPipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	p := &PDFIngestPipeline{
		fileRepo:      fileRepo,
		chunkRepo:     chunkRepo,
		extractor:     extractor,
		parentChunker: parentChunker,
		childSplitter: childSplitter,
		summarizer:    summarizer,
		embedder:      embedder,
		vs:            vs,
		vectorDim:     vectorDim,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *PDFIngestPipeline) Execute(ctx context.Context, req *PDFIngestRequest) (*PDFIngestResult, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	res, err := p.r.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}
