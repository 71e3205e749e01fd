package request

// AskRequest 提问请求
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	// DataScope 资料范围，可选；空值按自建资料源处理
	DataScope string `json:"data_scope"`
	// ReferenceFileIds 可选，显式指定要参考的文件
	ReferenceFileIds []string `json:"reference_file_ids"`
}
