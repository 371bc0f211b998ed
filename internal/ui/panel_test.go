package ui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPanelStaleWhileError(t *testing.T) {
	var p Panel[[]int]
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "загрузка...", p.Status())

	p.Apply([]int{1, 2}, nil, at)
	data, ok := p.Data()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, data)
	assert.Equal(t, "обновлено 12:00:00", p.Status())

	p.Apply(nil, errors.New("timeout"), at.Add(time.Minute))
	data, ok = p.Data()
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, data)
	assert.True(t, p.Stale())
	assert.Equal(t, "timeout", p.Err())
	assert.Contains(t, p.Status(), "данные от 12:00:00")

	p.Apply([]int{3}, nil, at.Add(2*time.Minute))
	assert.False(t, p.Stale())
	assert.Empty(t, p.Err())

	p.Reset()
	_, ok = p.Data()
	assert.False(t, ok)
}

func TestPanelErrorWithoutData(t *testing.T) {
	var p Panel[string]
	p.Apply("", errors.New("HTTP 502"), time.Now())
	assert.False(t, p.Stale())
	assert.Equal(t, "ошибка: HTTP 502 (r - повторить)", p.Status())
}

func TestFormatLogLine(t *testing.T) {
	line := `{"level":"\u001b[33mWARN\u001b[0m","ts":"16.10.2026 - 12:30:45.123456789+03:00","caller":"x.go:1","msg":"Ошибка API","status":502,"action":"ticker"}`
	assert.Equal(t, "[12:30:45] [WARN] Ошибка API (action: ticker) (status: 502)", formatLogLine(line))
	assert.Equal(t, "plain text", formatLogLine("plain text"))
}

func TestReadLogLines(t *testing.T) {
	lines, err := readLogLines(filepath.Join(t.TempDir(), "missing.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, lines)

	path := filepath.Join(t.TempDir(), "app.json.log")
	var content []string
	for i := 0; i < 8; i++ {
		content = append(content, `{"level":"INFO","msg":"m`+string(rune('0'+i))+`"}`)
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(content, "\n")), 0o644))

	lines, err = readLogLines(path, 3)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "[] [INFO] m7", lines[2])
	assert.Equal(t, "[] [INFO] m5", lines[0])
}
