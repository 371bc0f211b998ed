package news

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/pkg/models"
)

// Лимиты дневных файлов
const (
	MaxNewsPerDay      = 100
	MaxSentimentPerDay = 288 // раз в 5 минут за сутки
)

// Files дневные файлы новостей и настроений в <data>/news и <data>/sentiment
type Files struct {
	newsDir      string
	sentimentDir string

	mu  sync.Mutex
	now func() time.Time
}

// NewFiles создает хранилище в каталоге данных
func NewFiles(dataDir string) *Files {
	return &Files{
		newsDir:      filepath.Join(dataDir, "news"),
		sentimentDir: filepath.Join(dataDir, "sentiment"),
		now:          time.Now,
	}
}

func (f *Files) day() string {
	return f.now().UTC().Format("2006-01-02")
}

// SaveNews добавляет новости в файл текущего дня без повторов по id, оставляет последние 100
func (f *Files) SaveNews(items []models.NewsItem) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.newsDir, f.day()+".json")
	var existing []models.NewsItem
	if err := readJSON(path, &existing); err != nil {
		// Битый файл перезаписывается
		existing = nil
	}

	seen := make(map[string]bool, len(existing))
	for _, it := range existing {
		seen[it.ID] = true
	}
	added := 0
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		existing = append(existing, it)
		added++
	}
	if len(existing) > MaxNewsPerDay {
		existing = existing[len(existing)-MaxNewsPerDay:]
	}
	return added, writeJSON(path, existing)
}

// LatestNews новости текущего дня, свежие первыми. Нет файла, нет новостей.
func (f *Files) LatestNews(limit int) ([]models.NewsItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var items []models.NewsItem
	if err := readJSON(filepath.Join(f.newsDir, f.day()+".json"), &items); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []models.NewsItem{}
	}
	return items, nil
}

// SaveSentiment добавляет снимок в дневную историю и перезаписывает latest.json
func (f *Files) SaveSentiment(s models.Sentiment) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := filepath.Join(f.sentimentDir, f.day()+".json")
	var history []models.Sentiment
	if err := readJSON(path, &history); err != nil {
		history = nil
	}
	history = append(history, s)
	if len(history) > MaxSentimentPerDay {
		history = history[len(history)-MaxSentimentPerDay:]
	}
	if err := writeJSON(path, history); err != nil {
		return err
	}
	return writeJSON(filepath.Join(f.sentimentDir, "latest.json"), s)
}

// LatestSentiment последний снимок. Если его нет, нейтральный индекс.
func (f *Files) LatestSentiment() (models.Sentiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	def := models.Sentiment{FearGreedIndex: 50, FearGreedLabel: Label(50)}
	s := def
	if err := readJSON(filepath.Join(f.sentimentDir, "latest.json"), &s); err != nil {
		return def, err
	}
	return s, nil
}

// readJSON отсутствующий файл не ошибка, dest остается как есть
func readJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
