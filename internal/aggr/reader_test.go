package aggr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/skalibog/cryptodash/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, Dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dir, name), []byte(content), 0o644))
}

func TestMissingFilesGiveDefaults(t *testing.T) {
	r := NewReader(t.TempDir())

	for _, action := range []string{ActionStats, ActionWhales, ActionLiquidations, ActionTraining, ActionHealth} {
		_, err := r.Query(action, 0)
		assert.NoError(t, err, action)
	}

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, StatsResponse{}, stats)

	whales, err := r.Whales(10)
	require.NoError(t, err)
	assert.NotNil(t, whales)
	assert.Empty(t, whales)

	h := r.Health()
	assert.Equal(t, "empty", h.Status)
	assert.Len(t, h.Files, 4)
	assert.False(t, h.Files[StatsFile].Exists)
}

func TestUnknownAction(t *testing.T) {
	_, err := NewReader(t.TempDir()).Query("bogus", 0)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestCorruptLinesSkippedAndNewestFirst(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, WhalesFile,
		`{"id":"1","side":"buy","price":1000000,"amount":2}`+"\n"+
			"not json\n"+
			"\n"+
			`{"id":"2","side":"sell","price":1500000,"amount":1}`+"\n"+
			`{"id":"3","side":"buy","price":2000000,"amount":1}`+"\n")

	r := NewReader(dir)
	whales, err := r.Whales(2)
	require.NoError(t, err)
	require.Len(t, whales, 2)
	assert.Equal(t, "3", whales[0].ID)
	assert.Equal(t, "2", whales[1].ID)

	stats, err := r.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Whales)
	assert.Equal(t, 4000000.0, stats.WhaleBuyVolume)
	assert.Equal(t, 1500000.0, stats.WhaleSellVolume)
}

func TestStatsLatestSnapshot(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, StatsFile,
		`{"timestamp":"2024-01-01T00:00:00Z","connected":true,"stats":{"buyVolume":10},"cvd":10}`+"\n"+
			`{"timestamp":"2024-01-01T00:01:00Z","connected":false,"stats":{"buyVolume":30,"sellVolume":5},"cvd":25}`+"\n")
	writeFile(t, dir, LiquidationsFile,
		`{"id":"a","side":"long","valueUsd":100}`+"\n"+
			`{"id":"b","side":"short","valueUsd":40}`+"\n")

	stats, err := NewReader(dir).Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Snapshots)
	assert.Equal(t, models.FeedStats{BuyVolume: 30, SellVolume: 5}, stats.Latest.Stats)
	assert.Equal(t, 25.0, stats.Latest.CVD)
	assert.False(t, stats.Latest.Connected)
	assert.Equal(t, 100.0, stats.LongsLiquidated)
	assert.Equal(t, 40.0, stats.ShortsLiquidated)
}

func TestHealthStale(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, StatsFile, "{}\n")

	r := NewReader(dir)
	assert.Equal(t, "ok", r.Health().Status)

	r.now = func() time.Time { return time.Now().Add(time.Hour) }
	h := r.Health()
	assert.Equal(t, "stale", h.Status)
	assert.True(t, h.Files[StatsFile].Exists)
	assert.Equal(t, int64(3), h.Files[StatsFile].Size)
}

func TestTrainingQueryCount(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, TrainingFile, `{"symbol":"BTC/USDT"}`+"\n"+`{"symbol":"ETH/USDT"}`+"\n")

	out, err := NewReader(dir).Query(ActionTraining, 1)
	require.NoError(t, err)
	m := out.(map[string]interface{})
	assert.Equal(t, 1, m["count"])
	examples := m["examples"].([]models.TrainingExample)
	assert.Equal(t, "ETH/USDT", examples[0].Symbol)
}

func withSmallChunks(t *testing.T, chunk, maxLine int) {
	t.Helper()
	prevChunk, prevMax := tailChunk, maxLineSize
	tailChunk, maxLineSize = chunk, maxLine
	t.Cleanup(func() { tailChunk, maxLineSize = prevChunk, prevMax })
}

func TestTailAcrossChunks(t *testing.T) {
	withSmallChunks(t, 16, 1024)

	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, `{"id":"%d","side":"buy","price":1,"amount":1}`+"\n", i)
	}
	writeFile(t, dir, WhalesFile, b.String())

	whales, err := NewReader(dir).Whales(5)
	require.NoError(t, err)
	require.Len(t, whales, 5)
	for i, w := range whales {
		assert.Equal(t, fmt.Sprint(49-i), w.ID)
	}

	all, err := NewReader(dir).Whales(500)
	require.NoError(t, err)
	assert.Len(t, all, 50)
	assert.Equal(t, "0", all[49].ID)
}

func TestOversizedLineSkipped(t *testing.T) {
	withSmallChunks(t, 8, 64)

	dir := t.TempDir()
	huge := `{"id":"huge","note":"` + strings.Repeat("x", 200) + `"}`
	writeFile(t, dir, WhalesFile,
		`{"id":"1","side":"buy"}`+"\n"+huge+"\n"+`{"id":"2","side":"sell"}`+"\n")

	whales, err := NewReader(dir).Whales(10)
	require.NoError(t, err)
	require.Len(t, whales, 2)
	assert.Equal(t, "2", whales[0].ID)
	assert.Equal(t, "1", whales[1].ID)
}

func TestStatsBoundedToWindow(t *testing.T) {
	dir := t.TempDir()
	var b strings.Builder
	for i := 0; i < StatsWindow+20; i++ {
		fmt.Fprintf(&b, `{"timestamp":"2024-01-01T00:00:00Z","stats":{"buyVolume":%d},"cvd":%d}`+"\n", i, i)
	}
	writeFile(t, dir, StatsFile, b.String())

	stats, err := NewReader(dir).Stats()
	require.NoError(t, err)
	assert.Equal(t, StatsWindow, stats.Snapshots)
	assert.Equal(t, float64(StatsWindow+19), stats.Latest.CVD)
}

func TestFileWithoutTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LiquidationsFile, `{"id":"a","side":"long","valueUsd":1}`+"\n"+`{"id":"b","side":"short","valueUsd":2}`)

	liqs, err := NewReader(dir).Liquidations(10)
	require.NoError(t, err)
	require.Len(t, liqs, 2)
	assert.Equal(t, "b", liqs[0].ID)
}
