package respond

import "time"

// AskRespond 提问入队结果。答案异步生成，前端轮询 ai 消息状态。
type AskRespond struct {
	SessionId   string `json:"session_id"`
	HumanMsgId  int64  `json:"human_msg_id"`
	AiMessageId int64  `json:"ai_message_id"`
}

// ReferenceItem 答案引用
type ReferenceItem struct {
	Type    string `json:"type"`
	Id      string `json:"id"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
	Source  string `json:"source"`
}

// MessageItem 会话消息
type MessageItem struct {
	Id         int64           `json:"id"`
	Sender     string          `json:"sender"`
	Content    string          `json:"content"`
	Status     string          `json:"status"`
	References []ReferenceItem `json:"references,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ToolTraceItem 某条 ai 消息下落库的工具调用记录
type ToolTraceItem struct {
	Id        int64     `json:"id"`
	ToolName  string    `json:"tool_name"`
	ToolArgs  string    `json:"tool_args"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageDetail 消息详情，含审计用的工具调用轨迹
type MessageDetail struct {
	MessageItem
	ToolTrace []ToolTraceItem `json:"tool_trace,omitempty"`
}

// HistoryRespond 会话历史
type HistoryRespond struct {
	SessionId string        `json:"session_id"`
	Messages  []MessageItem `json:"messages"`
}

// SuggestionsRespond 推荐问题
type SuggestionsRespond struct {
	Questions []string `json:"questions"`
}
