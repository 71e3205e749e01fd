package tools

import (
	"context"
	"encoding/json"
	"strings"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const fileRetrievalTopK = 5

// FileRetrievalTool 按语义在文件摘要向量上检索用户的文件，
// 用于定位"哪些文件可能包含答案"。工具绑定当前用户。
type FileRetrievalTool struct {
	userID   string
	fileRepo repository.SourceFileRepository
	embedder embedding.Embedder
	vs       *vectordb.MilvusStore
}

func NewFileRetrievalTool(userID string, fileRepo repository.SourceFileRepository, embedder embedding.Embedder, vs *vectordb.MilvusStore) *FileRetrievalTool {
	return &FileRetrievalTool{userID: userID, fileRepo: fileRepo, embedder: embedder, vs: vs}
}

func (t *FileRetrievalTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "retrieve_files",
		Desc: "根據查詢語義找出使用者已上傳文件中最相關的文件，返回文件ID、檔名、格式與摘要。當需要先確定答案可能在哪份文件時使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "要查找的內容描述",
				Required: true,
			},
		}),
	}, nil
}

type fileRetrievalArgs struct {
	Query string `json:"query"`
}

type retrievedFile struct {
	FileID  string `json:"file_id"`
	Name    string `json:"name"`
	Format  string `json:"format"`
	Summary string `json:"summary"`
}

func (t *FileRetrievalTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args fileRetrievalArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "查詢不可為空", nil
	}

	files := t.searchBySummaryVector(ctx, query)
	if len(files) == 0 {
		// 向量召回失败或无结果时退回最近完成的文件
		recent, err := t.fileRepo.ListCompletedByUser(ctx, t.userID, fileRetrievalTopK)
		if err != nil {
			zlog.Warn("list completed files failed", zap.String("user_id", t.userID), zap.Error(err))
		}
		files = recent
	}
	if len(files) == 0 {
		return "使用者目前沒有可檢索的文件。", nil
	}

	out := make([]retrievedFile, 0, len(files))
	for _, f := range files {
		out = append(out, retrievedFile{
			FileID:  f.Id,
			Name:    f.Name,
			Format:  f.Format,
			Summary: f.Summary,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *FileRetrievalTool) searchBySummaryVector(ctx context.Context, query string) []*source.SourceFile {
	if t.embedder == nil || t.vs == nil {
		return nil
	}
	vecs, err := t.embedder.EmbedStrings(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		zlog.Warn("embed file query failed", zap.Error(err))
		return nil
	}
	qv := make([]float32, len(vecs[0]))
	for i, v := range vecs[0] {
		qv[i] = float32(v)
	}

	expr := vectordb.BuildFilterExpr(t.userID, nil, vectordb.DocKindFileSummary)
	hits, err := t.vs.Search(ctx, qv, fileRetrievalTopK, expr)
	if err != nil {
		zlog.Warn("file summary search failed", zap.Error(err))
		return nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if id, ok := vectordb.ParseFileRefID(h.RefID); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	files, err := t.fileRepo.GetByIDs(ctx, ids)
	if err != nil {
		zlog.Warn("load files by ids failed", zap.Error(err))
		return nil
	}
	// 保持向量命中顺序，只保留已完成的
	byID := make(map[string]*source.SourceFile, len(files))
	for _, f := range files {
		byID[f.Id] = f
	}
	out := make([]*source.SourceFile, 0, len(ids))
	for _, id := range ids {
		if f, ok := byID[id]; ok && f.Status == source.StatusCompleted {
			out = append(out, f)
		}
	}
	return out
}
