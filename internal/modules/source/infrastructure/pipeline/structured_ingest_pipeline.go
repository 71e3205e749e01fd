package pipeline

import (
	"context"
	"fmt"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/infrastructure/tabular"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
)

// 结构化管线的窄接口。生产实现依次为 tabular.Loader、
// database.Provisioner、summary.Summarizer
type (
	TableLoader interface {
		Load(path, format, nameStem string) ([]*tabular.Table, error)
	}
	TableProvisioner interface {
		DatabaseNameFor(userID string) string
		EnsureDatabase(ctx context.Context, dbName string) error
		CreateTable(ctx context.Context, dbName string, t *tabular.Table) error
		InsertRows(ctx context.Context, dbName string, t *tabular.Table) (int64, error)
		DropTable(ctx context.Context, dbName, table string) error
	}
	TableSummarizer interface {
		SummarizeTables(ctx context.Context, schemaDescription string) (string, error)
	}
)

type StructuredIngestRequest struct {
	FileID string
	UserID string
}

type StructuredIngestResult struct {
	FileID     string `json:"file_id"`
	Tables     int    `json:"tables"`
	Rows       int64  `json:"rows"`
	DurationMs int64  `json:"duration_ms"`
	Err        error  `json:"-"`
}

// StructuredIngestPipeline CSV/JSON/XML 入库流程：
// 解析成表 → 用户专属库建表导数 → 登记表元数据 → 生成数据描述摘要 → 摘要向量入 Milvus
type StructuredIngestPipeline struct {
	fileRepo  repository.SourceFileRepository
	tableRepo repository.SourceFileTableRepository

	loader      TableLoader
	provisioner TableProvisioner
	summarizer  TableSummarizer
	embedder    embedding.Embedder
	vs          ChunkVectorStore
	vectorDim   int

	r compose.Runnable[*StructuredIngestRequest, *StructuredIngestResult]
}

func NewStructuredIngestPipeline(
	fileRepo repository.SourceFileRepository,
	tableRepo repository.SourceFileTableRepository,
	loader TableLoader,
	provisioner TableProvisioner,
	summarizer TableSummarizer,
	embedder embedding.Embedder,
	vs ChunkVectorStore,
	vectorDim int,
) (*StructuredIngestPipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	p := &StructuredIngestPipeline{
		fileRepo:    fileRepo,
		tableRepo:   tableRepo,
		loader:      loader,
		provisioner: provisioner,
		summarizer:  summarizer,
		embedder:    embedder,
		vs:          vs,
		vectorDim:   vectorDim,
	}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

func (p *StructuredIngestPipeline) Execute(ctx context.Context, req *StructuredIngestRequest) (*StructuredIngestResult, error) {
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
