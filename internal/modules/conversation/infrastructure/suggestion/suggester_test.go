package suggestion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSuggestions(t *testing.T) {
	got := parseSuggestions(`好的：["2024 年營收是多少？"," 哪個地區成長最快？",""]`)
	require.Equal(t, []string{"2024 年營收是多少？", "哪個地區成長最快？"}, got)
}

func TestParseSuggestionsCapped(t *testing.T) {
	got := parseSuggestions(`["q1","q2","q3","q4","q5"]`)
	require.Equal(t, []string{"q1", "q2", "q3"}, got)
}

func TestParseSuggestionsBadOutput(t *testing.T) {
	require.Nil(t, parseSuggestions("模型沒有輸出陣列"))
	require.Nil(t, parseSuggestions("[1,2,3]"))
}
