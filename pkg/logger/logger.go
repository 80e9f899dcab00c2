package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the auth service.
// Text lines look like "2024-01-02T15:04:05Z [INFO] message k=v".
// With SetFormat("json") each line is a single JSON object instead.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Fields is structured context attached to a log line.
type Fields map[string]any

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
	asJSON bool
)

// Init sets the global log level (case-insensitive: debug, info, warn, error, fatal).
// Call early during startup. Default level is Info.
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	case "fatal":
		level = LevelFatal
	default:
		level = LevelInfo
	}
}

// SetFormat switches between "text" (default) and "json" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	asJSON = strings.EqualFold(strings.TrimSpace(f), "json")
}

func shouldLog(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func jsonMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return asJSON
}

func write(lvl, msg string, fields Fields) {
	if jsonMode() {
		payload := map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
			"level":     lvl,
			"message":   msg,
		}
		for k, v := range fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			payload[k] = v
		}
		b, err := json.Marshal(payload)
		if err != nil {
			logger.Println(`{"level":"error","message":"failed to encode log"}`)
			return
		}
		logger.Println(string(b))
		return
	}

	var sb strings.Builder
	sb.WriteString(time.Now().Format(time.RFC3339))
	sb.WriteString(" [")
	sb.WriteString(strings.ToUpper(lvl))
	sb.WriteString("] ")
	sb.WriteString(msg)
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%v", k, fields[k])
		}
	}
	logger.Println(sb.String())
}

func Debugf(format string, v ...interface{}) {
	if !shouldLog(LevelDebug) {
		return
	}
	write("debug", fmt.Sprintf(format, v...), nil)
}

func Infof(format string, v ...interface{}) {
	if !shouldLog(LevelInfo) {
		return
	}
	write("info", fmt.Sprintf(format, v...), nil)
}

func Warnf(format string, v ...interface{}) {
	if !shouldLog(LevelWarn) {
		return
	}
	write("warn", fmt.Sprintf(format, v...), nil)
}

func Errorf(format string, v ...interface{}) {
	if !shouldLog(LevelError) {
		return
	}
	write("error", fmt.Sprintf(format, v...), nil)
}

func Fatalf(format string, v ...interface{}) {
	write("fatal", fmt.Sprintf(format, v...), nil)
	os.Exit(1)
}

// InfoFields, WarnFields and ErrorFields log msg with structured context.
func InfoFields(msg string, f Fields) {
	if shouldLog(LevelInfo) {
		write("info", msg, f)
	}
}

func WarnFields(msg string, f Fields) {
	if shouldLog(LevelWarn) {
		write("warn", msg, f)
	}
}

func ErrorFields(msg string, f Fields) {
	if shouldLog(LevelError) {
		write("error", msg, f)
	}
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Fingerprint reduces a secret to a short hash prefix that is safe to log.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:4])
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}
