package references

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

const (
	// 类型标签
	TypeFile  = "file"
	TypeTable = "table"

	fallbackLimit = 5
	excerptRunes  = 200
)

// Reference 答案的可展示引用
type Reference struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Source  string `json:"source"`
}

// Extractor 从一轮会话落库的 tool 消息轨迹里还原引用列表。
// 检索工具的输出是携带 file_id 的结构化 JSON，直接解析即可，
// 不做自由文本反爬。
type Extractor struct {
	fileRepo repository.SourceFileRepository
}

func NewExtractor(fileRepo repository.SourceFileRepository) *Extractor {
	return &Extractor{fileRepo: fileRepo}
}

// 与 tools 包的输出结构保持一致，只留解析引用需要的字段
type toolOutputRecord struct {
	FileID string `json:"file_id"`
}

// Extract 汇总引用。优先级：
//  1. 请求里显式给定的引用文件 ID（校验归属与完成状态后直接引用）；
//  2. tool 消息输出中出现过的 file_id；
//  3. 都为空且确实发生过工具调用时，退回最近完成的 fallbackLimit 个文件。
//
// 零工具调用的回答不产生引用。
func (e *Extractor) Extract(ctx context.Context, userID string, explicitFileIDs []string, toolMsgs []*conversation.ChatMessage) []*Reference {
	if len(explicitFileIDs) > 0 {
		if refs := e.resolveFiles(ctx, userID, explicitFileIDs); len(refs) > 0 {
			return refs
		}
	}
	if len(toolMsgs) == 0 {
		return nil
	}

	ids := collectFileIDs(toolMsgs)
	if refs := e.resolveFiles(ctx, userID, ids); len(refs) > 0 {
		return refs
	}

	// 工具调用过但解析不出任何文件，引用最近完成的文件兜底
	recent, err := e.fileRepo.ListCompletedByUser(ctx, userID, fallbackLimit)
	if err != nil {
		zlog.Warn("fallback reference lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return toReferences(recent)
}

func collectFileIDs(toolMsgs []*conversation.ChatMessage) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range toolMsgs {
		for _, id := range parseFileIDs(m.Content) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// parseFileIDs 从工具输出 JSON（对象数组）里抽 file_id
func parseFileIDs(content string) []string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}
	var records []toolOutputRecord
	if err := json.Unmarshal([]byte(content[start:end+1]), &records); err != nil {
		return nil
	}
	var ids []string
	for _, r := range records {
		if strings.TrimSpace(r.FileID) != "" {
			ids = append(ids, r.FileID)
		}
	}
	return ids
}

// resolveFiles 只保留属于该用户且已完成处理的文件，保持传入顺序
func (e *Extractor) resolveFiles(ctx context.Context, userID string, ids []string) []*Reference {
	if len(ids) == 0 {
		return nil
	}
	files, err := e.fileRepo.GetByIDs(ctx, ids)
	if err != nil {
		zlog.Warn("resolve reference files failed", zap.Error(err))
		return nil
	}
	byID := make(map[string]*source.SourceFile, len(files))
	for _, f := range files {
		byID[f.Id] = f
	}
	ordered := make([]*source.SourceFile, 0, len(ids))
	for _, id := range ids {
		f, ok := byID[id]
		if !ok || f.UserId != userID || f.Status != source.StatusCompleted {
			continue
		}
		ordered = append(ordered, f)
	}
	return toReferences(ordered)
}

func toReferences(files []*source.SourceFile) []*Reference {
	refs := make([]*Reference, 0, len(files))
	for _, f := range files {
		refType := TypeFile
		sourceLabel := "PDF 檔案"
		if source.IsStructuredFormat(f.Format) {
			refType = TypeTable
			sourceLabel = "結構化檔案"
		}
		refs = append(refs, &Reference{
			Type:    refType,
			ID:      f.Id,
			Title:   f.Name,
			Excerpt: trimExcerpt(f.Summary),
			Source:  sourceLabel,
		})
	}
	return refs
}

func trimExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:excerptRunes]) + "..."
}

// MarshalReferences 序列化为落库的 references_json
func MarshalReferences(refs []*Reference) string {
	if len(refs) == 0 {
		return ""
	}
	data, err := json.Marshal(refs)
	if err != nil {
		zlog.Warn("marshal references failed", zap.Error(err))
		return ""
	}
	return string(data)
}
