package chunking

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/document/transformer/splitter/recursive"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/schema"
)

// ChildSplitter 把父块切成固定大小、带重叠的子块（检索粒度）
type ChildSplitter struct {
	ChunkSize    int
	ChunkOverlap int

	initOnce sync.Once
	initErr  error
	impl     document.Transformer
}

func NewChildSplitter(size, overlap int) *ChildSplitter {
	if size <= 0 {
		size = 300
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 2
	}
	return &ChildSplitter{ChunkSize: size, ChunkOverlap: overlap}
}

func (s *ChildSplitter) Split(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	s.initOnce.Do(func() {
		impl, err := recursive.NewSplitter(ctx, &recursive.Config{
			ChunkSize:   s.ChunkSize,
			OverlapSize: s.ChunkOverlap,
			Separators:  []string{"\n\n", "\n", "。", "！", "？", "；", "，", " "},
			LenFunc: func(t string) int {
				return len([]rune(t))
			},
			KeepType: recursive.KeepTypeEnd,
		})
		if err != nil {
			s.initErr = err
			return
		}
		s.impl = impl
	})
	if s.initErr != nil {
		return nil, s.initErr
	}
	if s.impl == nil {
		return nil, fmt.Errorf("recursive splitter not initialized")
	}

	frags, err := s.impl.Transform(ctx, []*schema.Document{{Content: text}})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(frags))
	for _, f := range frags {
		if f == nil {
			continue
		}
		content := strings.TrimSpace(f.Content)
		if content != "" {
			out = append(out, content)
		}
	}
	return out, nil
}
