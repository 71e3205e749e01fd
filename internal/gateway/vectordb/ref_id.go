package vectordb

import (
	"fmt"
	"strconv"
	"strings"
)

func FileRefID(fileID string) string { return "file:" + fileID }

func ChunkRefID(chunkID int64) string { return fmt.Sprintf("chunk:%d", chunkID) }

// ParseChunkRefID 解析 "chunk:<id>"，非分块记录返回 false
func ParseChunkRefID(refID string) (int64, bool) {
	rest, ok := strings.CutPrefix(refID, "chunk:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseFileRefID 解析 "file:<uuid>"，非文件摘要记录返回 false
func ParseFileRefID(refID string) (string, bool) {
	return strings.CutPrefix(refID, "file:")
}
