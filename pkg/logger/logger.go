package logger

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options настройки логгера
type Options struct {
	Level    string // debug, info, warn, error
	File     string // читаемый лог
	JSONFile string // JSON-лог, его читает дашборд
	Truncate bool   // очищать JSON-лог при запуске
}

// DefaultOptions настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		Level:    "debug",
		File:     "app.log",
		JSONFile: "app.json.log",
	}
}

// Глобальный экземпляр логгера
var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
	nopLogger    = zap.NewNop()
)

// Init инициализирует глобальный логгер
func Init(opts Options) {
	once.Do(func() {
		if opts.Truncate && opts.JSONFile != "" {
			// Очистка логов при перезапуске, отсутствие файла не ошибка
			_ = os.Truncate(opts.JSONFile, 0)
		}
		globalLogger.Store(newLogger(opts))
	})
}

// GetLogger возвращает глобальный экземпляр логгера
func GetLogger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	// До Init логируем в никуда: тесты и библиотечный код не должны создавать файлы
	return nopLogger
}

// Вспомогательные функции для удобства использования
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// Sync сбрасывает буферы логгера
func Sync() {
	_ = GetLogger().Sync()
}

// newLogger создает новый экземпляр логгера
func newLogger(opts Options) *zap.Logger {
	// Конфигурация энкодера
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("02.01.2006 - 15:04:05.000000000Z07:00")
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	level := parseLevel(opts.Level)

	var cores []zapcore.Core

	if opts.File != "" {
		if f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(f), level))
		}
	}
	if opts.JSONFile != "" {
		if f, err := os.OpenFile(opts.JSONFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), level))
		}
	}

	if len(cores) == 0 {
		// Файлы недоступны - пишем в stderr
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))
}

func parseLevel(s string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zapcore.DebugLevel
	}
	return level
}
