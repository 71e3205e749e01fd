package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// 单次归约最多拼接的分段摘要数
const reduceBatch = 20

const mapPrompt = `请用繁体中文简要总结以下内容的重点，控制在三句话以内，直接输出总结，不要加任何前缀：

%s`

const reducePrompt = `以下是同一份文件各段落的摘要。请用繁体中文把它们合并成一段完整的文件摘要，涵盖文件的主题与关键信息，控制在两百字以内，直接输出摘要：

%s`

const tablePrompt = `以下是一份结构化文件导入后的数据表定义与示例数据。请用繁体中文描述这份数据的内容与可回答的问题类型，控制在两百字以内，直接输出描述：

%s`

// Summarizer 用对话模型做 map-reduce 摘要
type Summarizer struct {
	cm model.BaseChatModel
}

func NewSummarizer(cm model.BaseChatModel) *Summarizer {
	return &Summarizer{cm: cm}
}

// SummarizeDocument 先逐段总结（map），再合并为文件级摘要（reduce）
func (s *Summarizer) SummarizeDocument(ctx context.Context, chunks []string) (string, error) {
	if s.cm == nil {
		return "", errors.New("summarizer: chat model is nil")
	}
	if len(chunks) == 0 {
		return "", nil
	}
	if len(chunks) == 1 {
		return s.generate(ctx, fmt.Sprintf(mapPrompt, chunks[0]))
	}

	partials := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		part, err := s.generate(ctx, fmt.Sprintf(mapPrompt, chunk))
		if err != nil {
			return "", err
		}
		if part != "" {
			partials = append(partials, part)
		}
	}

	for len(partials) > 1 {
		merged := make([]string, 0, (len(partials)+reduceBatch-1)/reduceBatch)
		for lo := 0; lo < len(partials); lo += reduceBatch {
			hi := lo + reduceBatch
			if hi > len(partials) {
				hi = len(partials)
			}
			part, err := s.generate(ctx, fmt.Sprintf(reducePrompt, strings.Join(partials[lo:hi], "\n")))
			if err != nil {
				return "", err
			}
			merged = append(merged, part)
		}
		partials = merged
	}
	return partials[0], nil
}

// SummarizeTables 对结构化文件生成数据描述型摘要
func (s *Summarizer) SummarizeTables(ctx context.Context, schemaDescription string) (string, error) {
	if s.cm == nil {
		return "", errors.New("summarizer: chat model is nil")
	}
	if strings.TrimSpace(schemaDescription) == "" {
		return "", nil
	}
	return s.generate(ctx, fmt.Sprintf(tablePrompt, schemaDescription))
}

func (s *Summarizer) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := s.cm.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
