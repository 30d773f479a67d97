package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/contextkeys"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levelNames[InfoLevel]
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name, defaulting to InfoLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogEntry is the JSON shape of one log line
type LogEntry struct {
	Time      string `json:"time"`
	Level     string `json:"level"`
	Message   string `json:"msg"`
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Logger writes JSON lines through slog. Derived loggers share the handler
// and carry their own fields.
type Logger struct {
	slog  *slog.Logger
	level LogLevel
}

var nop = &Logger{slog: slog.New(slog.NewJSONHandler(io.Discard, nil)), level: ErrorLevel}

// NewLogger creates a logger writing to output, stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{slog: slog.New(handler), level: level}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return nop
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Level returns the minimum level written
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{slog: l.slog.With(args...), level: l.level}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds several fields, in key order
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithError adds the error message and, for engine errors, its code
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	if e, ok := apperr.As(err); ok {
		return l.with("error", err.Error(), "error_code", string(e.Code))
	}
	return l.with("error", err.Error())
}

func (l *Logger) log(level LogLevel, msg string) {
	l.slog.Log(context.Background(), level.slogLevel(), msg)
}

// logf formats only when the level is enabled
func (l *Logger) logf(level LogLevel, format string, args []interface{}) {
	if !l.slog.Enabled(context.Background(), level.slogLevel()) {
		return
	}
	l.log(level, fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(msg string)                          { l.log(DebugLevel, msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args) }
func (l *Logger) Info(msg string)                           { l.log(InfoLevel, msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args) }
func (l *Logger) Warn(msg string)                           { l.log(WarnLevel, msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args) }
func (l *Logger) Error(msg string)                          { l.log(ErrorLevel, msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args) }

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return contextkeys.WithLogger(ctx, logger)
}

// GetLogger returns the logger stored in ctx, or an info-level stdout
// logger when there is none
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context logger annotated with the request, user
// and organization IDs carried by ctx
func FromContext(ctx context.Context) *Logger {
	var args []interface{}
	if id := contextkeys.GetRequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	if id := contextkeys.GetUserID(ctx); id != "" {
		args = append(args, "user_id", id)
	}
	if id := contextkeys.GetOrgID(ctx); id != "" {
		args = append(args, "org_id", id)
	}

	logger := GetLogger(ctx)
	if len(args) == 0 {
		return logger
	}
	return logger.with(args...)
}
