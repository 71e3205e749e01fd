package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/pdfext"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

type pdfIngestState struct {
	Req  *PDFIngestRequest
	File *source.SourceFile

	Text     string
	Parents  []string
	Children [][]string
	Summary  string
	// NoContent 文件没有可提取文本。不算失败：零分块完成，写占位摘要
	NoContent bool

	ParentRows []*source.SourceFileChunk
	ChildRows  []*source.SourceFileChunk

	VectorsOK int

	Start time.Time
	Err   error
}

func (p *PDFIngestPipeline) buildGraph(ctx context.Context) (compose.Runnable[*PDFIngestRequest, *PDFIngestResult], error) {
	const (
		LoadFile    = "LoadFile"
		ClearOld    = "ClearOld"
		Extract     = "Extract"
		ParentChunk = "ParentChunk"
		Summarize   = "Summarize"
		ChildSplit  = "ChildSplit"
		Persist     = "Persist"
		Embed       = "Embed"
		Finalize    = "Finalize"
	)

	g := compose.NewGraph[*PDFIngestRequest, *PDFIngestResult]()

	_ = g.AddLambdaNode(LoadFile, compose.InvokableLambdaWithOption(p.loadFileNode), compose.WithNodeName(LoadFile))
	_ = g.AddLambdaNode(ClearOld, compose.InvokableLambdaWithOption(p.clearOldNode), compose.WithNodeName(ClearOld))
	_ = g.AddLambdaNode(Extract, compose.InvokableLambdaWithOption(p.extractNode), compose.WithNodeName(Extract))
	_ = g.AddLambdaNode(ParentChunk, compose.InvokableLambdaWithOption(p.parentChunkNode), compose.WithNodeName(ParentChunk))
	_ = g.AddLambdaNode(Summarize, compose.InvokableLambdaWithOption(p.summarizeNode), compose.WithNodeName(Summarize))
	_ = g.AddLambdaNode(ChildSplit, compose.InvokableLambdaWithOption(p.childSplitNode), compose.WithNodeName(ChildSplit))
	_ = g.AddLambdaNode(Persist, compose.InvokableLambdaWithOption(p.persistNode), compose.WithNodeName(Persist))
	_ = g.AddLambdaNode(Embed, compose.InvokableLambdaWithOption(p.embedNode), compose.WithNodeName(Embed))
	_ = g.AddLambdaNode(Finalize, compose.InvokableLambdaWithOption(p.finalizeNode), compose.WithNodeName(Finalize))

	_ = g.AddEdge(compose.START, LoadFile)
	_ = g.AddEdge(LoadFile, ClearOld)
	_ = g.AddEdge(ClearOld, Extract)
	_ = g.AddEdge(Extract, ParentChunk)
	_ = g.AddEdge(ParentChunk, Summarize)
	_ = g.AddEdge(Summarize, ChildSplit)
	_ = g.AddEdge(ChildSplit, Persist)
	_ = g.AddEdge(Persist, Embed)
	_ = g.AddEdge(Embed, Finalize)
	_ = g.AddEdge(Finalize, compose.END)

	return g.Compile(ctx, compose.WithGraphName("PDFIngestPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

func (p *PDFIngestPipeline) loadFileNode(ctx context.Context, req *PDFIngestRequest, _ ...any) (*pdfIngestState, error) {
	st := &pdfIngestState{Req: req, Start: time.Now()}
	if req == nil || strings.TrimSpace(req.FileID) == "" {
		st.Err = fmt.Errorf("missing file_id")
		return st, nil
	}

	file, err := p.fileRepo.GetByID(ctx, req.FileID)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if file == nil {
		st.Err = fmt.Errorf("source file not found: %s", req.FileID)
		return st, nil
	}
	if file.Format != source.FormatPDF {
		st.Err = fmt.Errorf("file %s is not a pdf: %s", file.Id, file.Format)
		return st, nil
	}
	st.File = file
	return st, nil
}

// clearOldNode 重建前先清空该文件的旧分块与向量。
// 消息重投或上次失败重跑时，不会出现新旧分块混在一起。
func (p *PDFIngestPipeline) clearOldNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	if err := p.vs.DeleteByFile(ctx, st.File.UserId, st.File.Id); err != nil {
		st.Err = fmt.Errorf("clear old vectors: %w", err)
		return st, nil
	}
	if err := p.chunkRepo.DeleteByFile(ctx, st.File.Id); err != nil {
		st.Err = fmt.Errorf("clear old chunks: %w", err)
		return st, nil
	}
	return st, nil
}

func (p *PDFIngestPipeline) extractNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	text, err := p.extractor.ExtractText(st.File.Path)
	if errors.Is(err, pdfext.ErrNoExtractableText) {
		st.NoContent = true
		return st, nil
	}
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.Text = text
	return st, nil
}

func (p *PDFIngestPipeline) parentChunkNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil || st.NoContent {
		return st, nil
	}
	parents, err := p.parentChunker.Chunk(ctx, st.Text)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if len(parents) == 0 {
		st.NoContent = true
		return st, nil
	}
	st.Parents = parents
	return st, nil
}

func (p *PDFIngestPipeline) summarizeNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil || st.NoContent {
		return st, nil
	}
	sum, err := p.summarizer.SummarizeDocument(ctx, st.Parents)
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.Summary = sum
	return st, nil
}

func (p *PDFIngestPipeline) childSplitNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil || st.NoContent {
		return st, nil
	}
	st.Children = make([][]string, len(st.Parents))
	for i, parent := range st.Parents {
		children, err := p.childSplitter.Split(ctx, parent)
		if err != nil {
			st.Err = err
			return st, nil
		}
		st.Children[i] = children
	}
	return st, nil
}

func (p *PDFIngestPipeline) persistNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil || st.NoContent {
		return st, nil
	}
	now := time.Now()

	parents := make([]*source.SourceFileChunk, len(st.Parents))
	for i, content := range st.Parents {
		parents[i] = &source.SourceFileChunk{
			FileId:     st.File.Id,
			UserId:     st.File.UserId,
			ChunkIndex: i,
			Content:    content,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	if err := p.chunkRepo.BatchCreate(ctx, parents); err != nil {
		st.Err = err
		return st, nil
	}
	st.ParentRows = parents

	children := make([]*source.SourceFileChunk, 0, 64)
	for pi, parts := range st.Children {
		for ci, content := range parts {
			children = append(children, &source.SourceFileChunk{
				FileId:     st.File.Id,
				UserId:     st.File.UserId,
				ParentId:   sql.NullInt64{Int64: parents[pi].Id, Valid: true},
				ChunkIndex: ci,
				Content:    content,
				CreatedAt:  now,
				UpdatedAt:  now,
			})
		}
	}
	if len(children) > 0 {
		if err := p.chunkRepo.BatchCreate(ctx, children); err != nil {
			st.Err = err
			return st, nil
		}
	}
	st.ChildRows = children
	return st, nil
}

func (p *PDFIngestPipeline) embedNode(ctx context.Context, st *pdfIngestState, _ ...any) (*pdfIngestState, error) {
	if st.Err != nil || st.NoContent {
		return st, nil
	}

	// 向量化对象：全部子块 + 文件摘要
	texts := make([]string, 0, len(st.ChildRows)+1)
	items := make([]vectordb.UpsertItem, 0, len(st.ChildRows)+1)
	for _, child := range st.ChildRows {
		texts = append(texts, child.Content)
		items = append(items, vectordb.UpsertItem{
			RefID:   vectordb.ChunkRefID(child.Id),
			UserID:  st.File.UserId,
			FileID:  st.File.Id,
			DocKind: vectordb.DocKindChunk,
		})
	}
	if strings.TrimSpace(st.Summary) != "" {
		texts = append(texts, st.Summary)
		items = append(items, vectordb.UpsertItem{
			RefID:   vectordb.FileRefID(st.File.Id),
			UserID:  st.File.UserId,
			FileID:  st.File.Id,
			DocKind: vectordb.DocKindFileSummary,
		})
	}
	if len(items) == 0 {
		return st, nil
	}

	const embedBatch = 64
	vectors := make([][]float64, 0, len(texts))
	for lo := 0; lo < len(texts); lo += embedBatch {
		hi := lo + embedBatch
		if hi > len(texts) {
			hi = len(texts)
		}
		vecs, err := p.embedder.EmbedStrings(ctx, texts[lo:hi])
		if err != nil {
			st.Err = err
			return st, nil
		}
		vectors = append(vectors, vecs...)
	}

	for i := range items {
		vec64 := vectors[i]
		if len(vec64) != p.vectorDim {
			st.Err = fmt.Errorf("vector dim mismatch got=%d want=%d", len(vec64), p.vectorDim)
			return st, nil
		}
		vec32 := make([]float32, len(vec64))
		for j := range vec64 {
			vec32[j] = float32(vec64[j])
		}
		items[i].Vector = vec32
	}

	if _, err := p.vs.Upsert(ctx, items); err != nil {
		st.Err = err
		return st, nil
	}
	st.VectorsOK = len(items)
	return st, nil
}

func (p *PDFIngestPipeline) finalizeNode(ctx context.Context, st *pdfIngestState, _ ...any) (*PDFIngestResult, error) {
	res := &PDFIngestResult{Err: st.Err}
	if st.Req != nil {
		res.FileID = st.Req.FileID
	}
	res.DurationMs = time.Since(st.Start).Milliseconds()
	if st.Err != nil {
		return res, nil
	}

	// 没有可提取内容不算失败：零分块完成，摘要写占位说明
	if st.NoContent {
		st.Summary = fmt.Sprintf("PDF 檔案 %s 沒有可提取的內容，請使用其他方式提取內容。", st.File.Name)
	}

	if err := p.fileRepo.UpdateSummary(ctx, st.File.Id, st.Summary); err != nil {
		res.Err = err
		return res, nil
	}

	res.ParentChunks = len(st.ParentRows)
	res.ChildChunks = len(st.ChildRows)
	res.VectorsOK = st.VectorsOK

	zlog.Info("pdf ingest done",
		zap.String("file_id", st.File.Id),
		zap.String("user_id", st.File.UserId),
		zap.Int("parents", res.ParentChunks),
		zap.Int("children", res.ChildChunks),
		zap.Int("vectors", res.VectorsOK),
		zap.Int64("ms", res.DurationMs))
	return res, nil
}
