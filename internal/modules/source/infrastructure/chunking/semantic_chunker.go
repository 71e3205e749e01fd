package chunking

import (
	"context"
	"errors"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/embedding"
)

// SemanticChunker 把全文切成语义连贯的父块：
// 按句子切分，给每个句子拼上前后各 BufferSize 个句子做上下文，
// 对拼接结果求向量，按相邻句向量的余弦距离找断点
// （距离超过 Percentile 分位数即为段落边界）。
type SemanticChunker struct {
	embedder   embedding.Embedder
	BufferSize int
	Percentile float64
	BatchSize  int
}

func NewSemanticChunker(embedder embedding.Embedder) *SemanticChunker {
	return &SemanticChunker{
		embedder:   embedder,
		BufferSize: 3,
		Percentile: 90,
		BatchSize:  64,
	}
}

var sentenceBoundary = regexp.MustCompile(`[^。！？!?\n]+[。！？!?]?`)

// SplitSentences 按中英文句读符号与换行切句，丢弃空白句
func SplitSentences(text string) []string {
	raw := sentenceBoundary.FindAllString(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func (c *SemanticChunker) Chunk(ctx context.Context, text string) ([]string, error) {
	if c.embedder == nil {
		return nil, errors.New("semantic chunker: embedder is nil")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, nil
	}

	sentences := SplitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}, nil
	}

	combined := c.combineWithBuffer(sentences)
	vectors, err := c.embedAll(ctx, combined)
	if err != nil {
		return nil, err
	}

	distances := make([]float64, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		distances[i] = 1 - cosineSimilarity(vectors[i], vectors[i+1])
	}

	threshold := percentile(distances, c.Percentile)

	chunks := make([]string, 0, 4)
	start := 0
	for i, d := range distances {
		if d > threshold {
			chunks = append(chunks, strings.Join(sentences[start:i+1], ""))
			start = i + 1
		}
	}
	if start < len(sentences) {
		chunks = append(chunks, strings.Join(sentences[start:], ""))
	}
	return chunks, nil
}

// combineWithBuffer 给每个句子拼接前后 BufferSize 个句子，降低单句向量的噪声
func (c *SemanticChunker) combineWithBuffer(sentences []string) []string {
	buf := c.BufferSize
	if buf < 0 {
		buf = 0
	}
	combined := make([]string, len(sentences))
	for i := range sentences {
		lo := i - buf
		if lo < 0 {
			lo = 0
		}
		hi := i + buf + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		combined[i] = strings.Join(sentences[lo:hi], "")
	}
	return combined
}

func (c *SemanticChunker) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	batch := c.BatchSize
	if batch <= 0 {
		batch = 64
	}
	vectors := make([][]float64, 0, len(texts))
	for lo := 0; lo < len(texts); lo += batch {
		hi := lo + batch
		if hi > len(texts) {
			hi = len(texts)
		}
		vecs, err := c.embedder.EmbedStrings(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// percentile 线性插值分位数，p 取 [0,100]
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
