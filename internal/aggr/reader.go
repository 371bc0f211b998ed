// Package aggr читает аналитику ленты, которую пишет recorder: построчные JSON-файлы
// в каталоге <data>/aggr. Отсутствующие файлы дают пустые значения, а не ошибку.
package aggr

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/skalibog/cryptodash/pkg/logger"
	"github.com/skalibog/cryptodash/pkg/models"
	"go.uber.org/zap"
)

// Имена файлов в каталоге аналитики
const (
	Dir              = "aggr"
	WhalesFile       = "whales.jsonl"
	LiquidationsFile = "liquidations.jsonl"
	StatsFile        = "stats.jsonl"
	TrainingFile     = "training.jsonl"
)

// Действия /api/aggr
const (
	ActionStats        = "stats"
	ActionWhales       = "whales"
	ActionLiquidations = "liquidations"
	ActionTraining     = "training"
	ActionHealth       = "health"
)

// ErrUnknownAction неизвестное действие
var ErrUnknownAction = errors.New("unknown aggr action")

// DefaultLimit сколько последних записей отдавать по умолчанию
const DefaultLimit = 100

// StatsWindow суммы action=stats считаются по последним StatsWindow записям каждого файла
const StatsWindow = 1000

// staleAfter после этого срока без снимков статистики health сообщает stale
const staleAfter = 5 * time.Minute

// StatsRecord строка stats.jsonl
type StatsRecord struct {
	Timestamp time.Time        `json:"timestamp"`
	Connected bool             `json:"connected"`
	Stats     models.FeedStats `json:"stats"`
	CVD       float64          `json:"cvd"`
}

// StatsResponse ответ action=stats. Счетчики и суммы по последним StatsWindow записям.
type StatsResponse struct {
	Latest           StatsRecord `json:"latest"`
	Snapshots        int         `json:"snapshots"`
	Whales           int         `json:"whales"`
	WhaleBuyVolume   float64     `json:"whaleBuyVolume"`
	WhaleSellVolume  float64     `json:"whaleSellVolume"`
	Liquidations     int         `json:"liquidations"`
	LongsLiquidated  float64     `json:"longsLiquidatedUsd"`
	ShortsLiquidated float64     `json:"shortsLiquidatedUsd"`
}

// FileHealth состояние одного файла
type FileHealth struct {
	Exists  bool      `json:"exists"`
	Size    int64     `json:"size"`
	Updated time.Time `json:"updated,omitempty"`
}

// HealthResponse ответ action=health
type HealthResponse struct {
	Status string                `json:"status"` // ok | stale | empty
	Files  map[string]FileHealth `json:"files"`
}

// Reader читает файлы аналитики
type Reader struct {
	dir string
	now func() time.Time
}

// NewReader создает читателя для каталога данных
func NewReader(dataDir string) *Reader {
	return &Reader{dir: filepath.Join(dataDir, Dir), now: time.Now}
}

// Path путь к файлу аналитики
func (r *Reader) Path(name string) string {
	return filepath.Join(r.dir, name)
}

// Query выполняет действие API
func (r *Reader) Query(action string, limit int) (interface{}, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	switch action {
	case ActionStats:
		return r.Stats()
	case ActionWhales:
		whales, err := r.Whales(limit)
		return map[string]interface{}{"whales": whales}, err
	case ActionLiquidations:
		liqs, err := r.Liquidations(limit)
		return map[string]interface{}{"liquidations": liqs}, err
	case ActionTraining:
		examples, err := r.Training(limit)
		return map[string]interface{}{"examples": examples, "count": len(examples)}, err
	case ActionHealth:
		return r.Health(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Stats последний снимок статистики и суммы по китам и ликвидациям
func (r *Reader) Stats() (StatsResponse, error) {
	var resp StatsResponse

	snapshots, err := readLines[StatsRecord](r.Path(StatsFile), StatsWindow)
	if err != nil {
		return resp, err
	}
	resp.Snapshots = len(snapshots)
	if len(snapshots) > 0 {
		resp.Latest = snapshots[0]
	}

	whales, err := readLines[models.Trade](r.Path(WhalesFile), StatsWindow)
	if err != nil {
		return resp, err
	}
	resp.Whales = len(whales)
	for _, w := range whales {
		if w.Side == models.SideBuy {
			resp.WhaleBuyVolume += w.Notional()
		} else {
			resp.WhaleSellVolume += w.Notional()
		}
	}

	liqs, err := readLines[models.Liquidation](r.Path(LiquidationsFile), StatsWindow)
	if err != nil {
		return resp, err
	}
	resp.Liquidations = len(liqs)
	for _, l := range liqs {
		if l.Side == models.LiquidationLong {
			resp.LongsLiquidated += l.ValueUSD
		} else {
			resp.ShortsLiquidated += l.ValueUSD
		}
	}

	return resp, nil
}

// Whales последние сделки китов, новые первыми
func (r *Reader) Whales(limit int) ([]models.Trade, error) {
	return readLines[models.Trade](r.Path(WhalesFile), limit)
}

// Liquidations последние ликвидации, новые первыми
func (r *Reader) Liquidations(limit int) ([]models.Liquidation, error) {
	return readLines[models.Liquidation](r.Path(LiquidationsFile), limit)
}

// Training последние примеры для обучения, новые первыми
func (r *Reader) Training(limit int) ([]models.TrainingExample, error) {
	return readLines[models.TrainingExample](r.Path(TrainingFile), limit)
}

// Health наличие и свежесть файлов
func (r *Reader) Health() HealthResponse {
	resp := HealthResponse{Status: "empty", Files: make(map[string]FileHealth)}
	for _, name := range []string{WhalesFile, LiquidationsFile, StatsFile, TrainingFile} {
		info, err := os.Stat(r.Path(name))
		if err != nil {
			resp.Files[name] = FileHealth{}
			continue
		}
		resp.Files[name] = FileHealth{Exists: true, Size: info.Size(), Updated: info.ModTime()}
	}

	if stats := resp.Files[StatsFile]; stats.Exists {
		resp.Status = "ok"
		if r.now().Sub(stats.Updated) > staleAfter {
			resp.Status = "stale"
		}
	}
	return resp
}

// Параметры чтения с конца файла
var (
	tailChunk   = 64 * 1024
	maxLineSize = 1024 * 1024 // более длинные строки пропускаются
)

// readLines читает построчный JSON и возвращает последние limit записей новыми первыми.
// Файл читается с конца, поэтому стоимость зависит от limit, а не от размера файла.
// Отсутствующий файл дает пустой срез, битые строки пропускаются.
func readLines[T any](path string, limit int) ([]T, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	lines, err := tailLines(path, limit)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(lines))
	skipped := 0
	for _, line := range lines {
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			skipped++
			continue
		}
		items = append(items, item)
	}
	if skipped > 0 {
		logger.Debug("Пропущены битые строки", zap.String("file", path), zap.Int("count", skipped))
	}
	return items, nil
}

// tailLines последние n непустых строк файла, новые первыми
func tailLines(path string, n int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка открытия %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}

	var (
		out      [][]byte
		rest     []byte // начало строки, конец которой уже прочитан
		dropping bool   // rest оказался длиннее maxLineSize
	)
	pos := info.Size()
	for pos > 0 && len(out) < n {
		size := int64(tailChunk)
		if size > pos {
			size = pos
		}
		pos -= size
		data := make([]byte, size, int(size)+len(rest))
		if _, err := f.ReadAt(data, pos); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ошибка чтения %s: %w", path, err)
		}
		data = append(data, rest...)

		complete := data
		rest = nil
		if pos > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				rest = data
				if len(rest) > maxLineSize {
					rest, dropping = nil, true
				}
				continue
			}
			rest, complete = data[:i], data[i+1:]
		}

		segments := bytes.Split(complete, []byte{'\n'})
		if dropping {
			// хвост слишком длинной строки
			segments, dropping = segments[:len(segments)-1], false
		}
		for j := len(segments) - 1; j >= 0 && len(out) < n; j-- {
			if line := bytes.TrimSpace(segments[j]); len(line) > 0 && len(line) <= maxLineSize {
				out = append(out, line)
			}
		}
		if len(rest) > maxLineSize {
			rest, dropping = nil, true
		}
	}
	return out, nil
}
