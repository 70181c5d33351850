package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel uint8

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
)

// Config selects level and output format for the global logger.
type Config struct {
	Level  string
	Format string // json or console
	Output io.Writer

	// File, when set, is used by OpenOutput instead of stderr.
	File      string
	MaxSizeMB int
	Async     bool
}

type Logger struct {
	zl zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	zl := zerolog.New(out).
		Level(ParseLevel(cfg.Level).zerolog()).
		With().Timestamp().Logger()

	return &Logger{zl: zl}
}

func (l *Logger) log(level LogLevel, format string, args ...interface{}) {
	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelInfo:
		ev = l.zl.Info()
	case LevelWarn:
		ev = l.zl.Warn()
	case LevelError:
		ev = l.zl.Error()
	default:
		ev = l.zl.WithLevel(zerolog.ErrorLevel).Bool("critical", true)
	}
	ev.Msgf(format, args...)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LevelError, format, args...)
}

func (l *Logger) Critical(format string, args ...interface{}) {
	l.log(LevelCritical, format, args...)
}

// Zerolog exposes the underlying logger for structured events.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "critical", "fatal":
		return LevelCritical
	default:
		return LevelInfo
	}
}

func (lv LogLevel) zerolog() zerolog.Level {
	switch lv {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (lv LogLevel) String() string {
	switch lv {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

var (
	mu           sync.RWMutex
	GlobalLogger = NewLogger(Config{Level: "info"})
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func InitGlobalLogger(cfg Config) {
	l := NewLogger(cfg)
	mu.Lock()
	GlobalLogger = l
	mu.Unlock()
}

func global() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return GlobalLogger
}

func Debug(format string, args ...interface{}) {
	global().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	global().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	global().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	global().Error(format, args...)
}

func Critical(format string, args ...interface{}) {
	global().Critical(format, args...)
}
