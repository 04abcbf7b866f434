package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store 附件 blob 存储。
//
// 布局: <root>/attachments/<年>/<月>/<唯一前缀>_<清洗后文件名>
// 写入是一次性的，之后只读或删除。
type Store struct {
	root string
}

// NewStore 创建 blob 存储，root 不存在时自动创建。
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Store{root: abs}, nil
}

// unsafeFilenameChars 文件名中除字母数字点横线下划线以外的字符
var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SaveBlob 写入附件内容，返回相对路径。
func (s *Store) SaveBlob(filename string, content []byte) (string, error) {
	now := time.Now().UTC()
	dir := filepath.Join("attachments", now.Format("2006"), now.Format("01"))

	name := sanitizeFilename(filename)
	relPath := filepath.Join(dir, uuid.NewString()+"_"+name)

	absDir := filepath.Join(s.root, dir)
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("create attachment dir: %w", err)
	}

	absPath := filepath.Join(s.root, relPath)
	if err := os.WriteFile(absPath, content, 0644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return filepath.ToSlash(relPath), nil
}

// ReadBlob 读取附件内容。
func (s *Store) ReadBlob(path string) ([]byte, error) {
	abs, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// DeleteBlob 删除附件内容，文件不存在视为成功。
func (s *Store) DeleteBlob(path string) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(abs)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// resolve 把相对路径解析为 root 下的绝对路径，拒绝越界。
func (s *Store) resolve(path string) (string, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(path))
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid blob path: %s", path)
	}
	return abs, nil
}

// sanitizeFilename 清洗附件文件名，避免路径穿越和特殊字符。
func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		name = "unnamed_file"
	}
	// 过长的文件名截断，保留扩展名
	if len(name) > 120 {
		ext := filepath.Ext(name)
		name = name[:120-len(ext)] + ext
	}
	return name
}
