package source

import (
	"database/sql"
	"time"
)

// 文件处理状态
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// 支持的文件格式
const (
	FormatPDF  = "pdf"
	FormatCSV  = "csv"
	FormatJSON = "json"
	FormatXML  = "xml"
)

// IsStructuredFormat 是否为结构化（表格型）文件格式
func IsStructuredFormat(format string) bool {
	switch format {
	case FormatCSV, FormatJSON, FormatXML:
		return true
	}
	return false
}

type SourceFile struct {
	Id          string       `gorm:"column:id;type:char(36);primaryKey"`
	UserId      string       `gorm:"column:user_id;type:varchar(64);not null;index:idx_source_file_user"`
	Name        string       `gorm:"column:name;type:varchar(255);not null"`
	Format      string       `gorm:"column:format;type:varchar(10);not null"`
	Path        string       `gorm:"column:path;type:varchar(512);not null"`
	SizeBytes   int64        `gorm:"column:size_bytes;type:bigint;not null;default:0"`
	Summary     string       `gorm:"column:summary;type:mediumtext"`
	Status      string       `gorm:"column:status;type:varchar(16);not null;default:'PENDING';index:idx_source_file_status"`
	Traceback   string       `gorm:"column:traceback;type:text"`
	ProcessedAt sql.NullTime `gorm:"column:processed_at;type:datetime"`
	CreatedAt   time.Time    `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;type:datetime;not null"`
}

func (SourceFile) TableName() string { return "source_file" }

// SourceFileChunk PDF 文件的分块。ParentId 为空表示父块（语义段），
// 否则为挂在父块下的子块。向量只写入 Milvus，不落在本表。
type SourceFileChunk struct {
	Id         int64         `gorm:"column:id;primaryKey;autoIncrement"`
	FileId     string        `gorm:"column:file_id;type:char(36);not null;index:idx_source_chunk_file"`
	UserId     string        `gorm:"column:user_id;type:varchar(64);not null;index:idx_source_chunk_user"`
	ParentId   sql.NullInt64 `gorm:"column:parent_id;index:idx_source_chunk_parent"`
	ChunkIndex int           `gorm:"column:chunk_index;type:int;not null"`
	Content    string        `gorm:"column:content;type:mediumtext"`
	CreatedAt  time.Time     `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;type:datetime;not null"`
}

func (SourceFileChunk) TableName() string { return "source_file_chunk" }

func (c *SourceFileChunk) IsParent() bool { return !c.ParentId.Valid }

// SourceFileTable 结构化文件导入后生成的数据表登记项。
// 实际数据行落在用户专属数据库（见 database.Provisioner）。
type SourceFileTable struct {
	Id           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	FileId       string    `gorm:"column:file_id;type:char(36);not null;index:idx_source_table_file"`
	UserId       string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_source_table_user"`
	DatabaseName string    `gorm:"column:database_name;type:varchar(64);not null;uniqueIndex:uniq_source_table"`
	Name         string    `gorm:"column:table_name;type:varchar(64);not null;uniqueIndex:uniq_source_table"`
	SchemaJson   string    `gorm:"column:schema_json;type:json"`
	RowCount     int64     `gorm:"column:row_count;type:bigint;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime;not null"`
}

func (SourceFileTable) TableName() string { return "source_file_table" }
