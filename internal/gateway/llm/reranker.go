package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// Reranker 对候选文档按与查询的相关性重新排序，返回按相关性降序的下标。
// 实现不允许返回错误导致检索失败：排序失败时退回输入顺序。
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) []int
}

// chatModelReranker 用对话模型做 listwise 重排
type chatModelReranker struct {
	cm model.BaseChatModel
}

func NewChatModelReranker(cm model.BaseChatModel) Reranker {
	return &chatModelReranker{cm: cm}
}

const rerankPromptTemplate = `你是一個檢索結果重排序器。根據查詢與每段文件的相關性，將文件編號按相關性從高到低排序。

查詢：%s

文件列表：
%s

只輸出一個 JSON 陣列，內容為文件編號（整數），按相關性從高到低排列，例如：[2,0,1]。不要輸出其他文字。`

func (r *chatModelReranker) Rerank(ctx context.Context, query string, docs []string, topN int) []int {
	fallback := identityOrder(len(docs), topN)
	if r.cm == nil || len(docs) == 0 {
		return fallback
	}
	if len(docs) == 1 {
		return fallback
	}

	var sb strings.Builder
	for i, doc := range docs {
		// 过长文档截断，避免撑爆上下文
		if len(doc) > 1500 {
			doc = doc[:1500]
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i, doc))
	}

	msgs := []*schema.Message{
		schema.UserMessage(fmt.Sprintf(rerankPromptTemplate, query, sb.String())),
	}
	resp, err := r.cm.Generate(ctx, msgs)
	if err != nil {
		zlog.Warn("rerank generate failed, fallback to input order", zap.Error(err))
		return fallback
	}

	order, err := parseRerankOrder(resp.Content, len(docs))
	if err != nil {
		zlog.Warn("rerank parse failed, fallback to input order", zap.Error(err))
		return fallback
	}
	if topN > 0 && len(order) > topN {
		order = order[:topN]
	}
	return order
}

// parseRerankOrder 解析模型输出的下标数组，剔除越界与重复项，补齐缺失项
func parseRerankOrder(content string, n int) ([]int, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json array in rerank output")
	}

	var raw []int
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, n)
	order := make([]int, 0, n)
	for _, idx := range raw {
		if idx < 0 || idx >= n || seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, i)
		}
	}
	return order, nil
}

func identityOrder(n, topN int) []int {
	if topN > 0 && n > topN {
		n = topN
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}
