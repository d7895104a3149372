// Package logging provides leveled, structured logging for cachewarden components.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents the logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a string log level
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s", level)
	}
}

// Format defines the output format for logs
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Entry represents a complete log entry
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

// Config holds configuration for the logger
type Config struct {
	Level         Level
	Output        io.Writer
	Format        Format
	IncludeCaller bool

	// File enables rotated file output via lumberjack when non-empty.
	// Output is ignored in that case.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns default logger configuration
func DefaultConfig() *Config {
	return &Config{
		Level:         INFO,
		Output:        os.Stdout,
		Format:        FormatText,
		IncludeCaller: false,
		MaxSizeMB:     10,
		MaxBackups:    3,
		MaxAgeDays:    14,
	}
}

// Logger provides structured logging with levels and fields
type Logger struct {
	mu            sync.RWMutex
	level         Level
	output        io.Writer
	format        Format
	contextFields map[string]interface{}
	includeCaller bool
	rotator       *lumberjack.Logger
}

// New creates a new structured logger
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	logger := &Logger{
		level:         config.Level,
		output:        config.Output,
		format:        config.Format,
		contextFields: make(map[string]interface{}),
		includeCaller: config.IncludeCaller,
	}

	if config.File != "" {
		logger.rotator = &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		}
		logger.output = logger.rotator
	}

	if logger.output == nil {
		logger.output = os.Stdout
	}

	return logger, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{
		level:         ERROR + 1,
		output:        io.Discard,
		contextFields: make(map[string]interface{}),
	}
}

// WithField returns a new logger with an additional context field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newFields := make(map[string]interface{}, len(l.contextFields)+1)
	for k, v := range l.contextFields {
		newFields[k] = v
	}
	newFields[key] = value

	return &Logger{
		level:         l.level,
		output:        l.output,
		format:        l.format,
		contextFields: newFields,
		includeCaller: l.includeCaller,
		rotator:       l.rotator,
	}
}

// WithComponent returns a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) isEnabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return level >= l.level
}

// log writes a log entry
func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if !l.isEnabled(level) {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    make(map[string]interface{}),
	}

	l.mu.RLock()
	for k, v := range l.contextFields {
		entry.Fields[k] = v
	}
	l.mu.RUnlock()

	for k, v := range fields {
		entry.Fields[k] = v
	}

	if l.includeCaller {
		if _, file, line, ok := runtime.Caller(2); ok {
			parts := strings.Split(file, "/")
			entry.Caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
		}
	}

	var output string
	if l.format == FormatJSON {
		jsonBytes, err := json.Marshal(entry)
		if err != nil {
			output = l.formatText(entry)
		} else {
			output = string(jsonBytes) + "\n"
		}
	} else {
		output = l.formatText(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.output.Write([]byte(output))
}

// formatText formats a log entry as human-readable text
func (l *Logger) formatText(entry Entry) string {
	var sb strings.Builder

	sb.WriteString(entry.Timestamp.Format("2006-01-02 15:04:05.000"))
	sb.WriteString(" [")
	sb.WriteString(entry.Level)
	sb.WriteString("] ")

	if entry.Caller != "" {
		sb.WriteString("[")
		sb.WriteString(entry.Caller)
		sb.WriteString("] ")
	}

	sb.WriteString(entry.Message)

	if len(entry.Fields) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range entry.Fields {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(fmt.Sprintf("%v", v))
		}
		sb.WriteString("}")
	}

	sb.WriteString("\n")
	return sb.String()
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, firstOrNil(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, firstOrNil(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, firstOrNil(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, firstOrNil(fields))
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// Errorf logs a formatted error message
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERROR, fmt.Sprintf(format, args...), nil)
}

// Close closes the logger and any associated resources
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func firstOrNil(fieldMaps []map[string]interface{}) map[string]interface{} {
	if len(fieldMaps) > 0 {
		return fieldMaps[0]
	}
	return nil
}
