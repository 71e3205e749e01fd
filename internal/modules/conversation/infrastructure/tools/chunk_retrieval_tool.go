package tools

import (
	"context"
	"encoding/json"
	"strings"

	"RAGLink/internal/modules/conversation/infrastructure/search"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ChunkRetrievalTool 在 PDF 文件分块上做混合检索，返回父块全文。
// 工具绑定当前用户，file_ids 参数可选限定检索范围。
type ChunkRetrievalTool struct {
	userID string
	engine *search.HybridEngine
}

func NewChunkRetrievalTool(userID string, engine *search.HybridEngine) *ChunkRetrievalTool {
	return &ChunkRetrievalTool{userID: userID, engine: engine}
}

func (t *ChunkRetrievalTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "retrieve_chunks",
		Desc: "在使用者上傳的 PDF 文件內容中檢索與查詢最相關的段落原文。回答 PDF 文件內容相關的問題時使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "要查找的內容描述",
				Required: true,
			},
			"file_ids": {
				Type: schema.Array,
				Desc: "可選，限定在這些文件ID內檢索",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.String,
				},
			},
		}),
	}, nil
}

type chunkRetrievalArgs struct {
	Query   string   `json:"query"`
	FileIDs []string `json:"file_ids"`
}

type retrievedPassage struct {
	FileID  string `json:"file_id"`
	ChunkID int64  `json:"chunk_id"`
	Content string `json:"content"`
}

func (t *ChunkRetrievalTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args chunkRetrievalArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return "查詢不可為空", nil
	}

	retrieved := t.engine.Retrieve(ctx, t.userID, query, args.FileIDs)
	if len(retrieved) == 0 {
		return "沒有檢索到相關段落。", nil
	}

	out := make([]retrievedPassage, 0, len(retrieved))
	for _, r := range retrieved {
		out = append(out, retrievedPassage{
			FileID:  r.Parent.FileId,
			ChunkID: r.Parent.Id,
			Content: r.Parent.Content,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
