package util

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID 生成标准 UUID (v4)，用作文件与对话的主键
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID 生成不带中划线的 UUID，用于表名等不接受中划线的场合
func GenerateShortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
