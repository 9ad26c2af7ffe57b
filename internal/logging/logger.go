// Package logging provides structured logging for the hypercube optimization
// service. Entries are written as single-line JSON by default; a plain text
// format is available for interactive use. The package also bridges into zap
// (see zapadapter.go) so library code that logs through *zap.Logger shares
// the same sink.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"
)

// LogLevel represents the severity of a log entry.
type LogLevel string

const (
	// DebugLevel entries are voluminous and usually disabled in production.
	DebugLevel LogLevel = "DEBUG"
	// InfoLevel is the default priority.
	InfoLevel LogLevel = "INFO"
	// WarnLevel entries are notable but need no individual review.
	WarnLevel LogLevel = "WARN"
	// ErrorLevel entries indicate a failed operation.
	ErrorLevel LogLevel = "ERROR"
	// FatalLevel logs the entry and then calls os.Exit(1).
	FatalLevel LogLevel = "FATAL"
)

// severity orders levels for threshold checks. Unknown levels are never
// logged.
var severity = map[LogLevel]int{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
	FatalLevel: 4,
}

const (
	// FormatJSON emits one JSON object per entry.
	FormatJSON = "json"
	// FormatText emits a human-readable line per entry.
	FormatText = "text"
)

// Logger writes leveled, structured entries to a single output. Loggers are
// immutable; WithFields and friends return derived copies.
type Logger struct {
	level  LogLevel
	format string
	output io.Writer
	fields map[string]interface{}
}

// New creates a JSON Logger writing entries at or above level to output.
func New(level LogLevel, output io.Writer) *Logger {
	return &Logger{
		level:  level,
		format: FormatJSON,
		output: output,
		fields: make(map[string]interface{}),
	}
}

// WithFormat returns a copy of the logger using the given output format.
// Anything other than FormatText selects JSON.
func (l *Logger) WithFormat(format string) *Logger {
	clone := *l
	if format == FormatText {
		clone.format = FormatText
	} else {
		clone.format = FormatJSON
	}
	return &clone
}

// WithFields returns a copy of the logger that attaches the given fields to
// every entry.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	clone := *l
	clone.fields = merged
	return &clone
}

// WithField returns a copy of the logger with one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithError returns a copy of the logger with the error field set.
func (l *Logger) WithError(err error) *Logger {
	return l.WithField("error", err.Error())
}

// Debug logs a message at DebugLevel.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(DebugLevel, msg, first(fields))
}

// Info logs a message at InfoLevel.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(InfoLevel, msg, first(fields))
}

// Warn logs a message at WarnLevel.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(WarnLevel, msg, first(fields))
}

// Error logs a message at ErrorLevel.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(ErrorLevel, msg, first(fields))
}

// Fatal logs a message at FatalLevel and exits the process.
func (l *Logger) Fatal(msg string, fields ...map[string]interface{}) {
	l.log(FatalLevel, msg, first(fields))
}

func first(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func (l *Logger) log(level LogLevel, msg string, fields map[string]interface{}) {
	if !l.enabled(level) {
		return
	}

	all := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		all[k] = v
	}
	for k, v := range fields {
		all[k] = v
	}
	if _, ok := all["caller"]; !ok {
		all["caller"] = caller(3)
	}

	now := time.Now().UTC()
	if l.format == FormatText {
		l.writeText(now, level, msg, all)
	} else {
		l.writeJSON(now, level, msg, all)
	}

	if level == FatalLevel {
		os.Exit(1)
	}
}

func (l *Logger) writeJSON(now time.Time, level LogLevel, msg string, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp": now.Format(time.RFC3339Nano),
		"level":     level,
		"message":   msg,
	}
	for k, v := range fields {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Fall back to the text format rather than dropping the entry.
		l.writeText(now, level, msg, fields)
		return
	}
	data = append(data, '\n')
	_, _ = l.output.Write(data)
}

func (l *Logger) writeText(now time.Time, level LogLevel, msg string, fields map[string]interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", now.Format(time.RFC3339), level, msg)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	b.WriteByte('\n')
	_, _ = io.WriteString(l.output, b.String())
}

// enabled reports whether entries at the given level pass the threshold.
func (l *Logger) enabled(level LogLevel) bool {
	sev, ok := severity[level]
	if !ok {
		return false
	}
	threshold, ok := severity[l.level]
	if !ok {
		return false
	}
	return sev >= threshold
}

// caller returns "pkg/file.go:NN" for the frame skip levels up the stack.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}

type ctxLoggerKey struct{}

// FromContext returns the request-scoped logger stored in ctx, or a default
// stderr logger when none is present.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(ctxLoggerKey{}).(*Logger); ok {
		return logger
	}
	return New(InfoLevel, os.Stderr)
}

// NewContext returns a copy of ctx carrying the logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}
