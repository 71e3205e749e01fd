package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/database"
	"RAGLink/internal/modules/source/infrastructure/tabular"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const (
	// 单次生成 SQL 时携带的表数量上限
	tablesPerBatch = 2
	// 查询结果行数上限，避免把整张表塞进上下文
	maxRows = 50
	// 条件不明时每张表回传的样本行数
	sampleRows = 10

	// 禁止模型输出的无数据标记；一旦出现按输入含糊处理
	noDataMarker = "查無資料"
	// AmbiguousAnswer 模型违规输出无数据标记时的替换文案
	AmbiguousAnswer = "⚠️ 模型回傳查無資料，請確認欄位或描述是否模糊"
	// 所有批次都失败或无数据时的兜底答案
	AllEmptyAnswer = "在所有資料表中皆無資料。"
)

// TableResult 单批次查询结果
type TableResult struct {
	DatabaseName string
	Tables       []string
	SQL          string
	Answer       string
	Empty        bool
	Err          error
}

// SQLExecutor 在用户专属数据库上执行只读查询，生产实现是 database.Provisioner
type SQLExecutor interface {
	Query(ctx context.Context, dbName, sqlText string) ([]string, [][]any, error)
}

// Engine 把自然语言问题翻译成只读 SQL 并在用户专属数据库上执行。
// 按数据库分组，每组内每 tablesPerBatch 张表生成并执行一条 SQL。
type Engine struct {
	tableRepo   repository.SourceFileTableRepository
	provisioner SQLExecutor
	cm          model.BaseChatModel
}

func NewEngine(tableRepo repository.SourceFileTableRepository, provisioner SQLExecutor, cm model.BaseChatModel) *Engine {
	return &Engine{tableRepo: tableRepo, provisioner: provisioner, cm: cm}
}

const sqlPromptTemplate = `你是一個 MySQL 查詢產生器。根據資料表結構產生一條能回答問題的 SELECT 查詢。

規則：
1. 只能產生單條 SELECT 查詢，禁止任何寫入或 DDL。
2. 只能使用下面列出的資料表與欄位，表中另有自增主鍵 _row_id 可用於排序。
3. 若你能理解問題，請回傳符合條件的資料，並加上 LIMIT %d 限制筆數。
4. 若問題不夠明確，請回傳各表的前 %d 筆樣本資料（SELECT * FROM 表 LIMIT %d）。
5. 不得主觀認定為「%s」，除非所有欄位明確為空。
6. 把 SQL 放在 ` + "```sql" + ` 代碼塊中輸出，不要輸出其他解釋。

資料表結構：
%s

問題：%s`

// Query 对用户的全部（或指定文件的）导入表执行 NL2SQL，汇总各批次答案。
func (e *Engine) Query(ctx context.Context, userID, question string, fileIDs []string) (string, []*TableResult, error) {
	tables, err := e.listTables(ctx, userID, fileIDs)
	if err != nil {
		return "", nil, err
	}
	if len(tables) == 0 {
		return AllEmptyAnswer, nil, nil
	}

	results := e.runBatches(ctx, question, groupByDatabase(tables))

	var parts []string
	for _, r := range results {
		if r.Err != nil || r.Empty {
			continue
		}
		parts = append(parts, r.Answer)
	}
	if len(parts) == 0 {
		return AllEmptyAnswer, results, nil
	}
	return strings.Join(parts, "\n\n"), results, nil
}

func (e *Engine) listTables(ctx context.Context, userID string, fileIDs []string) ([]*source.SourceFileTable, error) {
	if len(fileIDs) > 0 {
		return e.tableRepo.ListByFiles(ctx, fileIDs)
	}
	return e.tableRepo.ListByUser(ctx, userID)
}

func groupByDatabase(tables []*source.SourceFileTable) map[string][]*source.SourceFileTable {
	grouped := make(map[string][]*source.SourceFileTable)
	for _, t := range tables {
		grouped[t.DatabaseName] = append(grouped[t.DatabaseName], t)
	}
	return grouped
}

func (e *Engine) runBatches(ctx context.Context, question string, grouped map[string][]*source.SourceFileTable) []*TableResult {
	var results []*TableResult
	for dbName, dbTables := range grouped {
		for i := 0; i < len(dbTables); i += tablesPerBatch {
			end := i + tablesPerBatch
			if end > len(dbTables) {
				end = len(dbTables)
			}
			results = append(results, e.runBatch(ctx, question, dbName, dbTables[i:end]))
		}
	}
	return results
}

func (e *Engine) runBatch(ctx context.Context, question, dbName string, tables []*source.SourceFileTable) *TableResult {
	res := &TableResult{DatabaseName: dbName}
	for _, t := range tables {
		res.Tables = append(res.Tables, t.Name)
	}

	prompt := fmt.Sprintf(sqlPromptTemplate, sampleRows, sampleRows, sampleRows, noDataMarker, describeSchemas(tables), question)
	resp, err := e.cm.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		zlog.Warn("nl2sql generate failed", zap.String("database", dbName), zap.Error(err))
		res.Err = err
		return res
	}

	// 模型违规输出无数据标记：按输入含糊处理，不当作查询结论
	if strings.Contains(resp.Content, noDataMarker) {
		zlog.Warn("nl2sql model claimed no data, treated as ambiguous input", zap.String("database", dbName))
		res.Answer = AmbiguousAnswer
		return res
	}

	sqlText, ok := ExtractSQL(resp.Content)
	if !ok {
		zlog.Warn("nl2sql output has no sql block, fallback to samples", zap.String("database", dbName))
		return e.sampleBatch(ctx, res, dbName, tables)
	}
	res.SQL = sqlText

	if !database.IsReadOnlyStatement(sqlText) {
		zlog.Warn("nl2sql produced non read-only statement, fallback to samples",
			zap.String("database", dbName), zap.String("sql", sqlText))
		return e.sampleBatch(ctx, res, dbName, tables)
	}

	cols, rows, err := e.provisioner.Query(ctx, dbName, sqlText)
	if err != nil {
		zlog.Warn("nl2sql execute failed, fallback to samples",
			zap.String("database", dbName), zap.String("sql", sqlText), zap.Error(err))
		return e.sampleBatch(ctx, res, dbName, tables)
	}
	if len(rows) == 0 {
		return e.sampleBatch(ctx, res, dbName, tables)
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	res.Answer = RenderMarkdownTable(cols, rows)
	return res
}

// sampleBatch 条件不明或查询失败时的兜底：回传批次内各表的前 sampleRows 筆樣本
func (e *Engine) sampleBatch(ctx context.Context, res *TableResult, dbName string, tables []*source.SourceFileTable) *TableResult {
	var parts []string
	for _, t := range tables {
		cols, rows, err := e.provisioner.Query(ctx, dbName,
			fmt.Sprintf("SELECT * FROM `%s` LIMIT %d", t.Name, sampleRows))
		if err != nil {
			zlog.Warn("nl2sql sample query failed",
				zap.String("database", dbName), zap.String("table", t.Name), zap.Error(err))
			continue
		}
		if len(rows) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("資料表 %s 樣本：\n%s", t.Name, RenderMarkdownTable(cols, rows)))
	}
	if len(parts) == 0 {
		res.Empty = true
		return res
	}
	res.Answer = strings.Join(parts, "\n")
	return res
}

// ExtractSQL 从模型输出中抽取代码块内的 SQL。优先找 ```sql 代码块，
// 退而求其次找任意 ``` 代码块；都没有则按整段 SELECT 开头判断。
func ExtractSQL(content string) (string, bool) {
	for _, fence := range []string{"```sql", "```SQL", "```"} {
		start := strings.Index(content, fence)
		if start < 0 {
			continue
		}
		rest := content[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			continue
		}
		sqlText := strings.TrimSpace(rest[:end])
		if sqlText != "" {
			return sqlText, true
		}
	}
	trimmed := strings.TrimSpace(content)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return trimmed, true
	}
	return "", false
}

// RenderMarkdownTable 把查询结果渲染为 Markdown 表格，NULL 渲染为空白
func RenderMarkdownTable(cols []string, rows [][]any) string {
	var sb strings.Builder
	sb.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i := range cols {
			if i < len(row) && row[i] != nil {
				cells[i] = sanitizeCell(fmt.Sprintf("%v", row[i]))
			}
		}
		sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return sb.String()
}

func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// describeSchemas 把登记的 schema_json 还原成提示词里的表结构描述
func describeSchemas(tables []*source.SourceFileTable) string {
	var sb strings.Builder
	for _, t := range tables {
		sb.WriteString(fmt.Sprintf("表名：%s（共 %d 行）\n", t.Name, t.RowCount))
		var cols []tabular.Column
		if err := json.Unmarshal([]byte(t.SchemaJson), &cols); err != nil {
			zlog.Warn("bad schema_json", zap.String("table", t.Name), zap.Error(err))
			continue
		}
		for _, c := range cols {
			sb.WriteString(fmt.Sprintf("  - %s %s\n", c.Name, c.SQLType))
		}
	}
	return sb.String()
}
