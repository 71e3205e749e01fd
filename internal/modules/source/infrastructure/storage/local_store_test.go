package storage

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathForSharding(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	path := s.PathFor("Alice", "f1", "PDF")
	require.Equal(t, filepath.Join(root, "a", "Alice", "f1.pdf"), path)

	// 用户名没有字母数字时落入 "_" 分片
	path = s.PathFor("!!", "f2", "csv")
	require.Equal(t, filepath.Join(root, "_", "__", "f2.csv"), path)
}

func TestSaveOpenRemove(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	path, n, err := s.Save("bob", "f1", "pdf", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	f, err := s.Open(path)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "hello", string(data))

	require.NoError(t, s.Remove(path))
	// 重复删除静默成功
	require.NoError(t, s.Remove(path))
}

func TestOpenRejectsPathOutsideRoot(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Open("/etc/passwd")
	require.Error(t, err)

	err = s.Remove(filepath.Join(s.root, "..", "escape.pdf"))
	require.Error(t, err)
}
