package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRerankOrder(t *testing.T) {
	order, err := parseRerankOrder("排序結果：[2,0,1]", 3)
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 1}, order)
}

func TestParseRerankOrderDropsInvalidAndBackfills(t *testing.T) {
	// 越界与重复剔除，缺失的 1 补在末尾
	order, err := parseRerankOrder("[2,2,5,-1,0]", 3)
	require.NoError(t, err)
	require.Equal(t, []int{2, 0, 1}, order)
}

func TestParseRerankOrderBadOutput(t *testing.T) {
	_, err := parseRerankOrder("模型拒絕回答", 3)
	require.Error(t, err)

	_, err = parseRerankOrder(`["a","b"]`, 2)
	require.Error(t, err)
}

func TestIdentityOrder(t *testing.T) {
	require.Equal(t, []int{0, 1, 2}, identityOrder(3, 5))
	require.Equal(t, []int{0, 1}, identityOrder(5, 2))
	require.Empty(t, identityOrder(0, 5))
}

func TestRerankWithoutModelFallsBack(t *testing.T) {
	r := NewChatModelReranker(nil)
	order := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	require.Equal(t, []int{0, 1}, order)
}
