package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore 保存上传文件并返回可访问的 URL
type BlobStore interface {
	Save(ctx context.Context, originalName string, r io.Reader) (url string, size int64, err error)
}

// LocalBlobStore 把文件写到本地目录, 通过 urlPrefix 对外提供
type LocalBlobStore struct {
	dir       string
	urlPrefix string
}

func NewLocalBlobStore(dir, urlPrefix string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalBlobStore{dir: dir, urlPrefix: strings.TrimRight(urlPrefix, "/")}, nil
}

// Save 使用随机文件名保存, 仅保留原始扩展名
func (s *LocalBlobStore) Save(ctx context.Context, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	if len(ext) > 16 {
		ext = ""
	}
	name := uuid.New().String() + ext

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create blob: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	return path.Join(s.urlPrefix, name), n, nil
}
