package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skalibog/cryptodash/internal/cache"
)

// FileStore хранит состояние в JSON-файле
type FileStore struct {
	path string
}

// NewFileStore создает хранилище в файле path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load читает файл, отсутствие файла не ошибка
func (f *FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", f.path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ошибка разбора %s: %w", f.path, err)
	}
	return &snap, nil
}

// Save пишет во временный файл и переименовывает
func (f *FileStore) Save(_ context.Context, snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// stateKey ключ состояния в кэше
const stateKey = "paper:state"

// CacheStore хранит состояние в кэше без срока жизни (Redis в рабочем режиме)
type CacheStore struct {
	cache cache.Cache
}

// NewCacheStore создает хранилище поверх кэша
func NewCacheStore(c cache.Cache) *CacheStore {
	return &CacheStore{cache: c}
}

// Load читает состояние
func (s *CacheStore) Load(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.cache.Get(ctx, stateKey, &snap)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save пишет состояние
func (s *CacheStore) Save(ctx context.Context, snap Snapshot) error {
	return s.cache.Set(ctx, stateKey, snap, 0)
}
