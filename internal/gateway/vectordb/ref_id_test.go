package vectordb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkRefIDRoundTrip(t *testing.T) {
	id, ok := ParseChunkRefID(ChunkRefID(42))
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}

func TestParseChunkRefIDRejectsOtherKinds(t *testing.T) {
	_, ok := ParseChunkRefID("file:abc")
	require.False(t, ok)

	_, ok = ParseChunkRefID("chunk:not-a-number")
	require.False(t, ok)
}

func TestParseFileRefID(t *testing.T) {
	id, ok := ParseFileRefID(FileRefID("3f2c9d1e"))
	require.True(t, ok)
	require.Equal(t, "3f2c9d1e", id)

	_, ok = ParseFileRefID("chunk:42")
	require.False(t, ok)
}

func TestBuildFilterExpr(t *testing.T) {
	expr := BuildFilterExpr("u1", nil, "")
	require.Equal(t, `user_id == "u1"`, expr)

	expr = BuildFilterExpr("u1", []string{"f1", "f2"}, DocKindChunk)
	require.Equal(t, `user_id == "u1" && file_id in ["f1", "f2"] && doc_kind == "chunk"`, expr)
}

func TestBuildFilterExprEscapesQuotes(t *testing.T) {
	expr := BuildFilterExpr(`u"1`, nil, "")
	require.Equal(t, `user_id == "u\"1"`, expr)
}
