package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(16)
	a, err := m.EmbedStrings(context.Background(), []string{"年度營收", "年度營收", "地區分布"})
	require.NoError(t, err)
	require.Len(t, a, 3)
	require.Equal(t, a[0], a[1])
	require.NotEqual(t, a[0], a[2])
}

func TestMockEmbedderNormalized(t *testing.T) {
	m := NewMockEmbedder(32)
	vecs, err := m.EmbedStrings(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs[0], 32)

	var norm float64
	for _, v := range vecs[0] {
		norm += v * v
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestMockEmbedderDefaultDim(t *testing.T) {
	m := NewMockEmbedder(0)
	require.Equal(t, 8, m.Dim)
}
