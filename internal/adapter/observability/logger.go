// Package observability provides structured logging shared by every adapter
// and use case.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"golang.org/x/term"
)

// Level defines the logging verbosity level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

// Format defines the output format for logs.
type Format int

const (
	FormatHuman Format = iota
	FormatJSON
)

// Logger is the structured logging interface used across the application.
type Logger interface {
	Debug(ctx context.Context, message string, fields map[string]interface{})
	Info(ctx context.Context, message string, fields map[string]interface{})
	Error(ctx context.Context, message string, fields map[string]interface{})
}

// StdLogger writes structured logs via the standard library logger.
type StdLogger struct {
	level      Level
	format     Format
	redactKeys bool
}

// New creates a logger from configuration strings. Unknown levels default to
// info. Format "auto" resolves to human when stdout is a terminal and JSON
// otherwise, so service deployments get machine-parseable logs without
// configuration.
func New(level, format string, redactKeys bool) *StdLogger {
	return &StdLogger{
		level:      parseLevel(level),
		format:     parseFormat(format),
		redactKeys: redactKeys,
	}
}

func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func parseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "human":
		return FormatHuman
	default: // auto
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return FormatHuman
		}
		return FormatJSON
	}
}

// Debug logs a debug message with structured fields.
func (l *StdLogger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LevelDebug {
		return
	}
	l.emit("debug", message, fields)
}

// Info logs an informational message with structured fields.
func (l *StdLogger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	if l.level > LevelInfo {
		return
	}
	l.emit("info", message, fields)
}

// Error logs an error message with structured fields.
func (l *StdLogger) Error(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit("error", message, fields)
}

func (l *StdLogger) emit(level, message string, fields map[string]interface{}) {
	if l.format == FormatJSON {
		entry := make(map[string]interface{}, len(fields)+2)
		for k, v := range fields {
			entry[k] = v
		}
		entry["level"] = level
		entry["msg"] = message
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf(`{"level":"error","msg":"log entry not serializable: %v"}`, err)
			return
		}
		log.Printf("%s", data)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", strings.ToUpper(level), message))
	for _, k := range sortedFieldKeys(fields) {
		sb.WriteString(fmt.Sprintf(" %s=%v", k, fields[k]))
	}
	log.Print(sb.String())
}

// RedactAPIKey shows only the last 4 characters of an API key with explicit
// redaction markers.
func (l *StdLogger) RedactAPIKey(key string) string {
	if !l.redactKeys {
		return key
	}
	if len(key) <= 4 {
		return "[REDACTED]"
	}
	return fmt.Sprintf("[REDACTED-%s]", key[len(key)-4:])
}

func sortedFieldKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
