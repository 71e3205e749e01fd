package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// LocalStore 把上传文件落到本地磁盘。
// 目录规则：<root>/<用户名首字母>/<用户名>/<uuid>.<format>，
// 避免单目录文件数过多。
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: root}, nil
}

// PathFor 计算文件的存放路径（不创建文件）
func (s *LocalStore) PathFor(username, fileID, format string) string {
	return filepath.Join(s.root, shardDir(username), safeName(username), fileID+"."+strings.ToLower(format))
}

// Save 写入文件内容并返回最终路径
func (s *LocalStore) Save(username, fileID, format string, r io.Reader) (string, int64, error) {
	path := s.PathFor(username, fileID, format)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, err
	}
	return path, n, nil
}

func (s *LocalStore) Open(path string) (*os.File, error) {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.root)+string(filepath.Separator)) {
		return nil, fmt.Errorf("path outside storage root: %s", path)
	}
	return os.Open(clean)
}

func (s *LocalStore) Remove(path string) error {
	clean := filepath.Clean(path)
	if !strings.HasPrefix(clean, filepath.Clean(s.root)+string(filepath.Separator)) {
		return fmt.Errorf("path outside storage root: %s", path)
	}
	err := os.Remove(clean)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func shardDir(username string) string {
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return strings.ToLower(string(r))
		}
	}
	return "_"
}

func safeName(username string) string {
	var sb strings.Builder
	for _, r := range username {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
