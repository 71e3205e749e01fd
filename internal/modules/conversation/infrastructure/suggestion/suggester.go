package suggestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/pkg/redis"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	suggestionCount = 3
	summaryFiles    = 5

	cacheKeyPrefix = "raglink:suggest:"
	cacheTTL       = 10 * time.Minute
)

// Suggester 根据用户最近完成的文件摘要生成推荐问题。
// 结果缓存在 Redis，cacheTTL 内同一用户不重复调模型。
// 生成失败返回空列表，不影响主流程。
type Suggester struct {
	fileRepo repository.SourceFileRepository
	cm       model.BaseChatModel
}

func NewSuggester(fileRepo repository.SourceFileRepository, cm model.BaseChatModel) *Suggester {
	return &Suggester{fileRepo: fileRepo, cm: cm}
}

const suggestPromptTemplate = `下面是使用者上傳文件的摘要。根據這些內容，提出 %d 個使用者可能想問的問題。
問題要具體、可以直接用這些文件回答。只輸出一個 JSON 字串陣列，不要輸出其他文字。

文件摘要：
%s`

func (s *Suggester) Suggest(ctx context.Context, userID string) []string {
	if s.cm == nil {
		return nil
	}
	if cached := s.fromCache(ctx, userID); cached != nil {
		return cached
	}
	files, err := s.fileRepo.ListCompletedByUser(ctx, userID, summaryFiles)
	if err != nil {
		zlog.Warn("suggestion list files failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}

	var sb strings.Builder
	for _, f := range files {
		if strings.TrimSpace(f.Summary) == "" {
			continue
		}
		sb.WriteString(fmt.Sprintf("《%s》：%s\n", f.Name, f.Summary))
	}
	if sb.Len() == 0 {
		return nil
	}

	resp, err := s.cm.Generate(ctx, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(suggestPromptTemplate, suggestionCount, sb.String())),
	})
	if err != nil {
		zlog.Warn("suggestion generate failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	questions := parseSuggestions(resp.Content)
	s.toCache(ctx, userID, questions)
	return questions
}

func (s *Suggester) fromCache(ctx context.Context, userID string) []string {
	if !redis.IsConnected() {
		return nil
	}
	raw, err := redis.Get(ctx, cacheKeyPrefix+userID)
	if err != nil || raw == "" {
		return nil
	}
	var questions []string
	if err := json.Unmarshal([]byte(raw), &questions); err != nil {
		return nil
	}
	return questions
}

func (s *Suggester) toCache(ctx context.Context, userID string, questions []string) {
	if !redis.IsConnected() || len(questions) == 0 {
		return
	}
	data, err := json.Marshal(questions)
	if err != nil {
		return
	}
	if err := redis.Set(ctx, cacheKeyPrefix+userID, string(data), cacheTTL); err != nil {
		zlog.Warn("cache suggestions failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func parseSuggestions(content string) []string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, q := range raw {
		q = strings.TrimSpace(q)
		if q != "" {
			out = append(out, q)
		}
		if len(out) >= suggestionCount {
			break
		}
	}
	return out
}
