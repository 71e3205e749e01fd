package nl2sql

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"RAGLink/internal/modules/source/domain/source"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"
)

type stubChatModel struct {
	content string
	err     error
}

func (m stubChatModel) Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.content, nil), nil
}

func (m stubChatModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("stream not supported")
}

// stubExecutor 记录执行过的 SQL，按表名回放预置结果
type stubExecutor struct {
	executed []string
	results  map[string][][]any
	cols     []string
}

func (e *stubExecutor) Query(ctx context.Context, dbName, sqlText string) ([]string, [][]any, error) {
	e.executed = append(e.executed, sqlText)
	for key, rows := range e.results {
		if strings.Contains(sqlText, key) {
			return e.cols, rows, nil
		}
	}
	return e.cols, nil, nil
}

func TestExtractSQLFencedBlock(t *testing.T) {
	content := "以下是查詢：\n```sql\nSELECT region, total FROM sales_abc LIMIT 10;\n```\n"
	sqlText, ok := ExtractSQL(content)
	require.True(t, ok)
	require.Equal(t, "SELECT region, total FROM sales_abc LIMIT 10;", sqlText)
}

func TestExtractSQLPlainFence(t *testing.T) {
	sqlText, ok := ExtractSQL("```\nSELECT 1\n```")
	require.True(t, ok)
	require.Equal(t, "SELECT 1", sqlText)
}

func TestExtractSQLBareSelect(t *testing.T) {
	sqlText, ok := ExtractSQL("  SELECT name FROM t ")
	require.True(t, ok)
	require.Equal(t, "SELECT name FROM t", sqlText)

	_, ok = ExtractSQL("這個問題無法回答")
	require.False(t, ok)
}

func TestRenderMarkdownTable(t *testing.T) {
	out := RenderMarkdownTable(
		[]string{"region", "total"},
		[][]any{{"north", int64(10)}, {"south", nil}},
	)
	require.Contains(t, out, "| region | total |")
	require.Contains(t, out, "| north | 10 |")
	// NULL 渲染为空白单元格
	require.Contains(t, out, "| south |  |")
}

func TestRenderMarkdownTableEscapesPipe(t *testing.T) {
	out := RenderMarkdownTable([]string{"v"}, [][]any{{"a|b"}})
	require.Contains(t, out, `a\|b`)
}

func TestRunBatchNoDataMarkerTreatedAsAmbiguous(t *testing.T) {
	exec := &stubExecutor{cols: []string{"a"}}
	e := NewEngine(nil, exec, stubChatModel{content: "這些表中查無資料。"})

	res := e.runBatch(context.Background(), "去年的營收？", "db_a",
		[]*source.SourceFileTable{{DatabaseName: "db_a", Name: "sales_x"}})

	require.NoError(t, res.Err)
	require.Equal(t, AmbiguousAnswer, res.Answer)
	// 无数据标记不触发任何查询
	require.Empty(t, exec.executed)
}

func TestRunBatchNoSQLFallsBackToSamples(t *testing.T) {
	exec := &stubExecutor{
		cols:    []string{"region", "total"},
		results: map[string][][]any{"sales_x": {{"north", int64(10)}}},
	}
	e := NewEngine(nil, exec, stubChatModel{content: "抱歉，我不確定你想查什麼。"})

	res := e.runBatch(context.Background(), "嗯？", "db_a",
		[]*source.SourceFileTable{{DatabaseName: "db_a", Name: "sales_x"}})

	require.NoError(t, res.Err)
	require.False(t, res.Empty)
	require.Contains(t, res.Answer, "資料表 sales_x 樣本")
	require.Contains(t, res.Answer, "north")
	require.Equal(t, []string{"SELECT * FROM `sales_x` LIMIT 10"}, exec.executed)
}

func TestRunBatchZeroRowsFallsBackToSamples(t *testing.T) {
	// 生成的 SQL 查不到行时回传样本，而不是宣告无数据
	exec := &stubExecutor{
		cols:    []string{"region"},
		results: map[string][][]any{"LIMIT 10": {{"south"}}},
	}
	e := NewEngine(nil, exec, stubChatModel{content: "```sql\nSELECT region FROM sales_x WHERE total > 99999\n```"})

	res := e.runBatch(context.Background(), "超過 99999 的地區", "db_a",
		[]*source.SourceFileTable{{DatabaseName: "db_a", Name: "sales_x"}})

	require.NoError(t, res.Err)
	require.Contains(t, res.Answer, "資料表 sales_x 樣本")
	require.Len(t, exec.executed, 2)
	require.Equal(t, "SELECT region FROM sales_x WHERE total > 99999", exec.executed[0])
}

func TestSampleBatchAllTablesEmpty(t *testing.T) {
	exec := &stubExecutor{cols: []string{"a"}}
	e := NewEngine(nil, exec, stubChatModel{content: "不重要"})

	res := e.sampleBatch(context.Background(), &TableResult{DatabaseName: "db_a"}, "db_a",
		[]*source.SourceFileTable{{DatabaseName: "db_a", Name: "t1"}})
	require.True(t, res.Empty)
	require.Empty(t, res.Answer)
}

func TestGroupByDatabase(t *testing.T) {
	tables := []*source.SourceFileTable{
		{DatabaseName: "db_a", Name: "t1"},
		{DatabaseName: "db_b", Name: "t2"},
		{DatabaseName: "db_a", Name: "t3"},
	}
	grouped := groupByDatabase(tables)
	require.Len(t, grouped, 2)
	require.Len(t, grouped["db_a"], 2)
	require.Len(t, grouped["db_b"], 1)
}
