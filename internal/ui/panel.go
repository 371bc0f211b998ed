package ui

import (
	"fmt"
	"time"
)

// Panel последние успешные данные панели и текст последней ошибки.
// Ошибка не стирает данные, следующий успешный ответ стирает ошибку.
type Panel[T any] struct {
	data    T
	loaded  bool
	err     string
	updated time.Time
}

// Apply применяет результат запроса
func (p *Panel[T]) Apply(v T, err error, at time.Time) {
	if err != nil {
		p.err = err.Error()
		return
	}
	p.data = v
	p.loaded = true
	p.err = ""
	p.updated = at
}

// Data последние успешные данные
func (p *Panel[T]) Data() (T, bool) {
	return p.data, p.loaded
}

// Err текст последней ошибки, пусто если ее нет
func (p *Panel[T]) Err() string {
	return p.err
}

// Stale показаны устаревшие данные из-за ошибки
func (p *Panel[T]) Stale() bool {
	return p.loaded && p.err != ""
}

// Reset забывает данные при смене инструмента
func (p *Panel[T]) Reset() {
	var zero T
	p.data, p.loaded, p.err, p.updated = zero, false, "", time.Time{}
}

// Status строка состояния под панелью
func (p *Panel[T]) Status() string {
	switch {
	case p.err != "" && p.loaded:
		return fmt.Sprintf("ошибка: %s (данные от %s, r - повторить)", p.err, p.updated.Format("15:04:05"))
	case p.err != "":
		return fmt.Sprintf("ошибка: %s (r - повторить)", p.err)
	case !p.loaded:
		return "загрузка..."
	default:
		return "обновлено " + p.updated.Format("15:04:05")
	}
}
