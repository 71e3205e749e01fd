package respond

import "time"

// UploadRespond 上传文件响应
type UploadRespond struct {
	FileID string `json:"file_id"` // 文件 ID
	Name   string `json:"name"`   // 原始文件名
	Format string `json:"format"` // 文件格式
	Status string `json:"status"` // 处理状态（入队后为 PENDING）
}

// SourceFileItem 文件列表项
type SourceFileItem struct {
	FileID      string     `json:"file_id"`
	Name        string     `json:"name"`
	Format      string     `json:"format"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      string     `json:"status"`
	Summary     string     `json:"summary,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// SourceFileDetail 文件详情（含失败原因与导入表）
type SourceFileDetail struct {
	SourceFileItem
	Traceback string            `json:"traceback,omitempty"` // 处理失败时的错误堆栈
	Tables    []SourceTableItem `json:"tables,omitempty"`    // 结构化文件的导入表
}

// SourceTableItem 结构化文件导入生成的数据表
type SourceTableItem struct {
	DatabaseName string `json:"database_name"`
	TableName    string `json:"table_name"`
	SchemaJson   string `json:"schema_json"`
	RowCount     int64  `json:"row_count"`
}
