// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer PromptmuxLogger with contextual
// helpers (query, agent, component) and domain specific logging helpers for
// capability calls, task execution and query fan-out.
//
// Log arguments are slog-style alternating key/value pairs throughout.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface for promptmux. Args are
// alternating key/value pairs as in slog. Users can provide their own
// implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// LoggerConfig configures construction of a PromptmuxLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	QueryID   string
	AgentID   string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true}
}

// PromptmuxLogger is a slog-backed Logger carrying sticky contextual
// attributes (component, query id, agent id). The With* helpers return
// derived loggers; the receiver is never mutated, so one logger can be
// shared and specialized per subsystem.
type PromptmuxLogger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger builds a PromptmuxLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *PromptmuxLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With("component", cfg.Component)
	}
	if cfg.QueryID != "" {
		logger = logger.With("query_id", cfg.QueryID)
	}
	if cfg.AgentID != "" {
		logger = logger.With("agent_id", cfg.AgentID)
	}

	return &PromptmuxLogger{logger: logger, level: cfg.Level}
}

// NewSlogLogger creates a PromptmuxLogger with the given level, format
// ("json" or "text") and source annotation.
func NewSlogLogger(level LogLevel, format string, addSource bool) *PromptmuxLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource

	return NewLogger(cfg)
}

func (l *PromptmuxLogger) with(args ...any) *PromptmuxLogger {
	return &PromptmuxLogger{logger: l.logger.With(args...), level: l.level}
}

// WithContext adds a key/value attribute to every subsequent log entry.
func (l *PromptmuxLogger) WithContext(key string, value any) *PromptmuxLogger {
	return l.with(key, value)
}

// WithComponent sets the logical component (agent, queue, orchestrator, etc.).
func (l *PromptmuxLogger) WithComponent(c string) *PromptmuxLogger {
	return l.with("component", c)
}

// WithQuery attaches a query identifier to subsequent log entries.
func (l *PromptmuxLogger) WithQuery(queryID string) *PromptmuxLogger {
	return l.with("query_id", queryID)
}

// WithAgent attaches an agent identifier to subsequent log entries.
func (l *PromptmuxLogger) WithAgent(agentID string) *PromptmuxLogger {
	return l.with("agent_id", agentID)
}

// Debug logs at debug level.
func (l *PromptmuxLogger) Debug(msg string, args ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debug(msg, args...)
	}
}

// Info logs at info level.
func (l *PromptmuxLogger) Info(msg string, args ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Info(msg, args...)
	}
}

// Warn logs at warn level.
func (l *PromptmuxLogger) Warn(msg string, args ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warn(msg, args...)
	}
}

// Error logs at error level.
func (l *PromptmuxLogger) Error(msg string, args ...any) {
	if l.level <= LogLevelError {
		l.logger.Error(msg, args...)
	}
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *PromptmuxLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}

	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)

	args = append(args,
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
		"stack_trace", string(stack[:n]),
	)
	l.logger.Error(msg, args...)
}

// LogCapabilityCall records latency, token usage and success of one platform
// capability call.
func (l *PromptmuxLogger) LogCapabilityCall(platform, model string, tokens int, dur time.Duration, success bool, err error) {
	args := []any{
		"platform", platform,
		"model", model,
		"token_count", tokens,
		"duration", dur,
		"success", success,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if success {
		l.Info("Capability call completed", args...)
		return
	}
	l.Error("Capability call failed", args...)
}

// LogTaskExecution records execution details for one agent task.
func (l *PromptmuxLogger) LogTaskExecution(agentID, taskID string, attempts int, dur time.Duration, success bool, err error) {
	args := []any{
		"agent_id", agentID,
		"task_id", taskID,
		"attempts", attempts,
		"duration", dur,
		"success", success,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if success {
		l.Info("Task execution completed", args...)
		return
	}
	l.Error("Task execution failed", args...)
}

// LogQueryExecution records aggregate fan-out metrics for one query.
func (l *PromptmuxLogger) LogQueryExecution(queryID string, platforms int, dur time.Duration, success bool, err error) {
	args := []any{
		"query_id", queryID,
		"platform_count", platforms,
		"duration", dur,
		"success", success,
	}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	if success {
		l.Info("Query execution completed", args...)
		return
	}
	l.Error("Query execution failed", args...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *PromptmuxLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() {
		l.Info("Operation completed", "operation", op, "duration", time.Since(start))
	}
}
