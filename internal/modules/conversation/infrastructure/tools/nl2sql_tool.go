package tools

import (
	"context"
	"encoding/json"
	"strings"

	"RAGLink/internal/modules/conversation/infrastructure/nl2sql"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// NL2SQLTool 把自然语言问题交给 nl2sql.Engine，在使用者导入的
// 结构化数据表上执行只读查询并返回 Markdown 表格结果。
type NL2SQLTool struct {
	userID string
	engine *nl2sql.Engine
}

func NewNL2SQLTool(userID string, engine *nl2sql.Engine) *NL2SQLTool {
	return &NL2SQLTool{userID: userID, engine: engine}
}

func (t *NL2SQLTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "query_tables",
		Desc: "對使用者從 CSV/JSON/XML 匯入的資料表執行查詢並返回結果表格。回答統計、篩選、數值比較等需要查表的問題時使用。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     schema.String,
				Desc:     "要對資料表提出的問題，用自然語言描述",
				Required: true,
			},
			"file_ids": {
				Type: schema.Array,
				Desc: "可選，限定只查這些文件匯入的資料表",
				ElemInfo: &schema.ParameterInfo{
					Type: schema.String,
				},
			},
		}),
	}, nil
}

type nl2sqlArgs struct {
	Question string   `json:"question"`
	FileIDs  []string `json:"file_ids"`
}

func (t *NL2SQLTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var args nl2sqlArgs
	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		return "", err
	}
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return "問題不可為空", nil
	}

	answer, _, err := t.engine.Query(ctx, t.userID, question, args.FileIDs)
	if err != nil {
		return "", err
	}
	return answer, nil
}
