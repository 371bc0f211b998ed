// Package poller запускает периодические задачи панелей с явными Start/Stop.
// Одновременные запуски одной задачи схлопываются в один.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skalibog/cryptodash/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrUnknownTask задача с таким ключом не зарегистрирована
var ErrUnknownTask = errors.New("unknown task")

// Task периодическая задача
type Task struct {
	Key      string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Status снимок состояния задачи
type Status struct {
	Key     string
	LastRun time.Time
	LastErr error
	Runs    int
}

type entry struct {
	task Task

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
	runs    int
}

// Poller управляет задачами
type Poller struct {
	timeout time.Duration
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[string]*entry
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New создает поллер. timeout ограничивает один запуск задачи, 0 без ограничения.
func New(timeout time.Duration) *Poller {
	return &Poller{timeout: timeout, entries: make(map[string]*entry)}
}

// Add регистрирует задачу. Задача, добавленная после Start, запускается сразу.
func (p *Poller) Add(task Task) error {
	if task.Key == "" || task.Run == nil || task.Interval <= 0 {
		return fmt.Errorf("некорректная задача %q", task.Key)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.entries[task.Key]; ok {
		return fmt.Errorf("задача %q уже зарегистрирована", task.Key)
	}
	e := &entry{task: task}
	p.entries[task.Key] = e
	if p.ctx != nil {
		p.startLocked(e)
	}
	return nil
}

// Start запускает все задачи: первый запуск сразу, далее по интервалу
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx != nil {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	for _, e := range p.entries {
		p.startLocked(e)
	}
	logger.Debug("Поллер запущен", zap.Int("tasks", len(p.entries)))
}

// Stop останавливает задачи и ждет завершения текущих запусков
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.ctx, p.cancel = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	logger.Debug("Поллер остановлен")
}

// Trigger немедленно запускает задачу вне расписания и ждет результата.
// Если задача уже выполняется, ждет текущий запуск.
func (p *Poller) Trigger(ctx context.Context, key string) error {
	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, key)
	}
	return p.run(ctx, e)
}

// Status состояние задачи
func (p *Poller) Status(key string) (Status, bool) {
	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Key: key, LastRun: e.lastRun, LastErr: e.lastErr, Runs: e.runs}, true
}

func (p *Poller) startLocked(e *entry) {
	ctx := p.ctx
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.loop(ctx, e)
	}()
}

func (p *Poller) loop(ctx context.Context, e *entry) {
	ticker := time.NewTicker(e.task.Interval)
	defer ticker.Stop()

	for {
		if err := p.run(ctx, e); err != nil && ctx.Err() == nil {
			logger.Debug("Ошибка задачи", zap.String("task", e.task.Key), zap.Error(err))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Poller) run(ctx context.Context, e *entry) error {
	_, err, _ := p.group.Do(e.task.Key, func() (interface{}, error) {
		runCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		err := e.task.Run(runCtx)

		e.mu.Lock()
		e.lastRun = time.Now()
		e.lastErr = err
		e.runs++
		e.mu.Unlock()
		return nil, err
	})
	return err
}
