package remoteconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	// ErrNoCache 表示没有已持久化的配置。
	ErrNoCache = errors.New("no cached config")
	// ErrCorruptCache 表示持久化内容无法解析，按 "没有缓存" 处理。
	ErrCorruptCache = errors.New("cached config is corrupt")
)

// Store 持久化最近一次验证通过的配置。
// Save 必须是原子的：并发的 Load 只能看到旧记录或新记录。
type Store interface {
	Load(ctx context.Context) (*CachedRecord, error)
	Save(ctx context.Context, rec CachedRecord) error
}

// DefaultCachePath 返回用户缓存目录下的默认缓存文件路径。
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, DefaultCacheFileName)
}

// FileStore 把 CachedRecord 以 JSON 存储在本地文件。
// 写入先落临时文件再 rename 覆盖，读者无需加锁。
type FileStore struct {
	path string
	log  *slog.Logger
	mu   sync.Mutex // 串行化写入
}

// NewFileStore 创建文件存储，log 可为 nil。
func NewFileStore(path string, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{path: path, log: log}
}

// Path 返回缓存文件路径。
func (s *FileStore) Path() string {
	return s.path
}

// Load 读取缓存文件，文件不存在时返回 ErrNoCache。
func (s *FileStore) Load(ctx context.Context) (*CachedRecord, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoCache
	}
	if err != nil {
		return nil, fmt.Errorf("read cache file failed: %w", err)
	}

	var rec CachedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCache, err)
	}
	if len(rec.Config) == 0 {
		return nil, fmt.Errorf("%w: missing config field", ErrCorruptCache)
	}

	s.log.Debug("read config from cache file",
		slog.String("path", s.path),
		slog.Int("size", len(data)))

	return &rec, nil
}

// Save 原子地覆盖缓存文件。
func (s *FileStore) Save(ctx context.Context, rec CachedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record failed: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// 临时文件必须与目标同目录，rename 才是原子的
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename 成功后是 no-op

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	s.log.Debug("wrote config to cache file",
		slog.String("path", s.path),
		slog.Int("size", len(data)))

	return nil
}
