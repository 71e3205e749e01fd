package search

import (
	"context"
	"strings"

	"RAGLink/internal/gateway/llm"
	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	lexicalLimit = 10
	vectorLimit  = 10
	rerankTopN   = 5
)

// RetrievedChunk 检索结果。Chunk 为命中的子块，Parent 为其所属父块
// （命中父块本身时两者相同），回答时把父块全文交给模型。
type RetrievedChunk struct {
	Chunk  *source.SourceFileChunk
	Parent *source.SourceFileChunk
}

// HybridEngine 关键词子串召回 + 向量余弦召回 + LLM 重排的混合检索。
// 检索自身不向上抛错：任一路召回失败时记日志并用剩下的召回结果继续。
type HybridEngine struct {
	chunkRepo repository.SourceFileChunkRepository
	embedder  embedding.Embedder
	vs        *vectordb.MilvusStore
	reranker  llm.Reranker
	cm        model.BaseChatModel
}

func NewHybridEngine(
	chunkRepo repository.SourceFileChunkRepository,
	embedder embedding.Embedder,
	vs *vectordb.MilvusStore,
	reranker llm.Reranker,
	cm model.BaseChatModel,
) *HybridEngine {
	return &HybridEngine{
		chunkRepo: chunkRepo,
		embedder:  embedder,
		vs:        vs,
		reranker:  reranker,
		cm:        cm,
	}
}

const keywordPromptTemplate = `從下面的查詢中抽取 1~3 個最適合做資料庫子串比對的關鍵詞。
只輸出以逗號分隔的關鍵詞清單，例如：營收,2024。不要輸出其他文字。

查詢：%s`

// ExtractKeywords 用 LLM 从查询里抽关键词，失败时退回整条查询
func (e *HybridEngine) ExtractKeywords(ctx context.Context, query string) []string {
	fallback := []string{strings.TrimSpace(query)}
	if e.cm == nil {
		return fallback
	}
	resp, err := e.cm.Generate(ctx, []*schema.Message{
		schema.UserMessage(strings.ReplaceAll(keywordPromptTemplate, "%s", query)),
	})
	if err != nil {
		zlog.Warn("keyword extraction failed, fallback to raw query", zap.Error(err))
		return fallback
	}
	kws := parseKeywordList(resp.Content)
	if len(kws) == 0 {
		return fallback
	}
	return kws
}

// parseKeywordList 解析逗号分隔的关键词清单，兼容全角逗号与多余空白
func parseKeywordList(content string) []string {
	content = strings.ReplaceAll(content, "，", ",")
	var out []string
	for _, k := range strings.Split(content, ",") {
		k = strings.Trim(strings.TrimSpace(k), "\"'`")
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// Retrieve 混合检索：关键词召回与向量召回各取上限后去重合并
// （词法命中排前），再重排取前 rerankTopN，最后解析出父块。
func (e *HybridEngine) Retrieve(ctx context.Context, userID, query string, fileIDs []string) []*RetrievedChunk {
	lexical := e.lexicalRecall(ctx, userID, query, fileIDs)
	vector := e.vectorRecall(ctx, userID, query, fileIDs)

	merged := make([]*source.SourceFileChunk, 0, len(lexical)+len(vector))
	seen := make(map[int64]bool, len(lexical)+len(vector))
	for _, c := range lexical {
		if !seen[c.Id] {
			seen[c.Id] = true
			merged = append(merged, c)
		}
	}
	for _, c := range vector {
		if !seen[c.Id] {
			seen[c.Id] = true
			merged = append(merged, c)
		}
	}
	if len(merged) == 0 {
		return nil
	}

	docs := make([]string, len(merged))
	for i, c := range merged {
		docs[i] = c.Content
	}
	order := e.reranker.Rerank(ctx, query, docs, rerankTopN)

	out := make([]*RetrievedChunk, 0, len(order))
	seenParent := make(map[int64]bool, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(merged) {
			continue
		}
		c := merged[idx]
		parent, err := e.chunkRepo.GetParentOf(ctx, c.Id)
		if err != nil || parent == nil {
			zlog.Warn("resolve parent chunk failed", zap.Int64("chunk_id", c.Id), zap.Error(err))
			parent = c
		}
		// 同一父块只保留最相关的一次命中
		if seenParent[parent.Id] {
			continue
		}
		seenParent[parent.Id] = true
		out = append(out, &RetrievedChunk{Chunk: c, Parent: parent})
	}
	return out
}

func (e *HybridEngine) lexicalRecall(ctx context.Context, userID, query string, fileIDs []string) []*source.SourceFileChunk {
	var out []*source.SourceFileChunk
	seen := make(map[int64]bool)
	for _, kw := range e.ExtractKeywords(ctx, query) {
		if len(out) >= lexicalLimit {
			break
		}
		chunks, err := e.chunkRepo.SearchChildrenBySubstring(ctx, userID, fileIDs, kw, lexicalLimit-len(out))
		if err != nil {
			zlog.Warn("lexical recall failed", zap.String("keyword", kw), zap.Error(err))
			continue
		}
		for _, c := range chunks {
			if !seen[c.Id] {
				seen[c.Id] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (e *HybridEngine) vectorRecall(ctx context.Context, userID, query string, fileIDs []string) []*source.SourceFileChunk {
	if e.embedder == nil || e.vs == nil {
		return nil
	}
	vecs, err := e.embedder.EmbedStrings(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		zlog.Warn("embed query failed", zap.Error(err))
		return nil
	}
	qv := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		qv[i] = float32(v)
	}

	expr := vectordb.BuildFilterExpr(userID, fileIDs, vectordb.DocKindChunk)
	hits, err := e.vs.Search(ctx, qv, vectorLimit, expr)
	if err != nil {
		zlog.Warn("vector recall failed", zap.Error(err))
		return nil
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		if id, ok := vectordb.ParseChunkRefID(h.RefID); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	chunks, err := e.chunkRepo.GetByIDs(ctx, ids)
	if err != nil {
		zlog.Warn("load recalled chunks failed", zap.Error(err))
		return nil
	}
	// 按命中得分顺序返回
	byID := make(map[int64]*source.SourceFileChunk, len(chunks))
	for _, c := range chunks {
		byID[c.Id] = c
	}
	out := make([]*source.SourceFileChunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
