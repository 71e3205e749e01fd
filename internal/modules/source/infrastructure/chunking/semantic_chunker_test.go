package chunking

import (
	"context"
	"strings"
	"testing"

	gatewayEmbedding "RAGLink/internal/gateway/embedding"

	"github.com/stretchr/testify/require"
)

func TestSplitSentences(t *testing.T) {
	text := "今天天氣很好。我們去公園！你要一起來嗎？好的"
	sentences := SplitSentences(text)
	require.Len(t, sentences, 4)
	require.Equal(t, "今天天氣很好。", sentences[0])
	require.Equal(t, "好的", sentences[3])
}

func TestSplitSentencesNewline(t *testing.T) {
	sentences := SplitSentences("第一行\n第二行\n")
	require.Len(t, sentences, 2)
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.InDelta(t, 10.0, percentile(values, 100), 1e-9)
	require.InDelta(t, 1.0, percentile(values, 0), 1e-9)
	require.InDelta(t, 5.5, percentile(values, 50), 1e-9)
}

func TestCosineSimilarity(t *testing.T) {
	require.InDelta(t, 1.0, cosineSimilarity([]float64{1, 0}, []float64{2, 0}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	require.InDelta(t, 0.0, cosineSimilarity([]float64{0, 0}, []float64{1, 1}), 1e-9)
}

func TestChunkCoversAllSentences(t *testing.T) {
	chunker := NewSemanticChunker(gatewayEmbedding.NewMockEmbedder(16))

	var sb strings.Builder
	for i := 0; i < 12; i++ {
		if i < 6 {
			sb.WriteString("蘋果是一種常見的水果。")
		} else {
			sb.WriteString("資料庫索引可以加速查詢。")
		}
	}
	text := sb.String()

	chunks, err := chunker.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	// 所有句子都要落在某个块里，拼回去等于原文
	require.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkDeterministic(t *testing.T) {
	chunker := NewSemanticChunker(gatewayEmbedding.NewMockEmbedder(16))
	text := "早上去了市場。買了一些蔬菜。下午在家看書。晚上散步回家。"

	a, err := chunker.Chunk(context.Background(), text)
	require.NoError(t, err)
	b, err := chunker.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestChunkEmptyAndSingle(t *testing.T) {
	chunker := NewSemanticChunker(gatewayEmbedding.NewMockEmbedder(8))

	chunks, err := chunker.Chunk(context.Background(), "   ")
	require.NoError(t, err)
	require.Empty(t, chunks)

	chunks, err = chunker.Chunk(context.Background(), "只有一句話")
	require.NoError(t, err)
	require.Equal(t, []string{"只有一句話"}, chunks)
}

func TestChildSplitterBounds(t *testing.T) {
	s := NewChildSplitter(50, 10)

	out, err := s.Split(context.Background(), strings.Repeat("測試句子，內容重複。", 30))
	require.NoError(t, err)
	require.Greater(t, len(out), 1)
	for _, c := range out {
		require.NotEmpty(t, strings.TrimSpace(c))
	}

	out, err = s.Split(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, out)
}
