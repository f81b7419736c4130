package proxy

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// LogMonitor is a small leveled logger backed by a writer. The full detail of
// upstream failures goes here and only here; caller-facing responses carry
// the fixed error vocabulary instead.
type LogMonitor struct {
	mu         sync.Mutex
	out        io.Writer
	level      LogLevel
	timeFormat string
}

func NewLogMonitor() *LogMonitor {
	return NewLogMonitorWriter(os.Stdout)
}

func NewLogMonitorWriter(w io.Writer) *LogMonitor {
	return &LogMonitor{
		out:        w,
		level:      LevelInfo,
		timeFormat: time.RFC3339,
	}
}

func (l *LogMonitor) SetLogLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// ParseLogLevel maps a config string onto a level, defaulting to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *LogMonitor) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *LogMonitor) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *LogMonitor) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *LogMonitor) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *LogMonitor) Debug(msg string) { l.logf(LevelDebug, "%s", msg) }
func (l *LogMonitor) Info(msg string)  { l.logf(LevelInfo, "%s", msg) }
func (l *LogMonitor) Warn(msg string)  { l.logf(LevelWarn, "%s", msg) }
func (l *LogMonitor) Error(msg string) { l.logf(LevelError, "%s", msg) }

func (l *LogMonitor) logf(level LogLevel, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}
	fmt.Fprintf(l.out, "[%s] [%s] %s\n", time.Now().Format(l.timeFormat), levelTag(level), fmt.Sprintf(format, args...))
}

func levelTag(level LogLevel) string {
	switch level {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}
