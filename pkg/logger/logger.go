// Package logger is a small leveled logger shared by the permit services.
// It writes single-line records to stdout and filters by a global level
// set once at startup, so handlers and services can log without carrying
// a logger value around.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// ParseLevel maps a config string to a Level. Unknown values fall back to Info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "info"
	}
}

var (
	mu        sync.RWMutex
	out       = log.New(os.Stdout, "", 0)
	threshold = LevelInfo
)

// Init sets the global level from its config string form. Call once during startup.
func Init(level string) {
	mu.Lock()
	threshold = ParseLevel(level)
	mu.Unlock()
}

// Current reports the active level.
func Current() Level {
	mu.RLock()
	defer mu.RUnlock()
	return threshold
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w *log.Logger) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func logf(l Level, format string, args ...interface{}) {
	mu.RLock()
	enabled := l >= threshold
	dst := out
	mu.RUnlock()
	if !enabled {
		return
	}
	dst.Printf("%s [%s] %s",
		time.Now().Format(time.RFC3339),
		strings.ToUpper(l.String()),
		fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }

// Fatalf logs the message and exits the process.
func Fatalf(format string, args ...interface{}) {
	logf(LevelFatal, format, args...)
	os.Exit(1)
}
