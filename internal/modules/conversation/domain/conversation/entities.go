package conversation

import "time"

// 消息发送方
const (
	SenderHuman = "human"
	SenderAI    = "ai"
	SenderTool  = "tool"
)

// 消息处理状态（仅 ai 消息会经历完整状态机）
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// ChatSession 会话。每个用户惰性创建唯一一条。
type ChatSession struct {
	Id        string    `gorm:"column:id;type:char(36);primaryKey"`
	UserId    string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:uniq_chat_session_user"`
	Title     string    `gorm:"column:title;type:varchar(255)"`
	CreatedAt time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (ChatSession) TableName() string { return "chat_session" }

// ChatMessage 会话消息。tool 消息通过 ParentId 挂在触发它的 ai 消息下，
// 历史拼接时会被跳过，仅作为审计记录保留。
type ChatMessage struct {
	Id             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionId      string    `gorm:"column:session_id;type:char(36);not null;index:idx_chat_message_session"`
	UserId         string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_chat_message_user"`
	ParentId       int64     `gorm:"column:parent_id;type:bigint;not null;default:0;index:idx_chat_message_parent"`
	Sender         string    `gorm:"column:sender;type:varchar(10);not null"`
	Content        string    `gorm:"column:content;type:mediumtext"`
	Status         string    `gorm:"column:status;type:varchar(16);not null;default:'COMPLETED'"`
	Traceback      string    `gorm:"column:traceback;type:text"`
	ToolName       string    `gorm:"column:tool_name;type:varchar(64)"`
	ToolCallId     string    `gorm:"column:tool_call_id;type:varchar(64)"`
	ToolArgs       string    `gorm:"column:tool_args;type:text"`
	ReferencesJson string    `gorm:"column:references_json;type:json"`
	IsDeleted      bool      `gorm:"column:is_deleted;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;type:datetime;not null;index:idx_chat_message_created"`
	UpdatedAt      time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (ChatMessage) TableName() string { return "chat_message" }

func (m *ChatMessage) IsToolMessage() bool { return m.Sender == SenderTool }
