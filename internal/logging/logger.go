// Package logging provides structured logging on top of zap.
//
// Fields whose key names a secret such as a password or private key are
// written as "[REDACTED]" whatever their value.
package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log message
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	LevelFatal LogLevel = "fatal"
)

// LogFormat represents the output format for logs
type LogFormat string

const (
	FormatJSON LogFormat = "json"
	FormatText LogFormat = "text"
)

const redacted = "[REDACTED]"

// secretKeyParts are matched case-insensitively against field keys
var secretKeyParts = []string{"password", "privatekey", "private_key", "secret", "authorization", "jwt", "apikey", "api_key"}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, part := range secretKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

func field(key string, value interface{}) zap.Field {
	if isSecretKey(key) {
		return zap.String(key, redacted)
	}
	return zap.Any(key, value)
}

// Logger is an immutable structured logger; With* methods return copies
type Logger struct {
	z *zap.Logger
}

// NewLogger creates a logger writing to stdout
func NewLogger(level LogLevel, format LogFormat) *Logger {
	return NewLoggerTo(os.Stdout, level, format)
}

// NewLoggerTo creates a logger writing to w
func NewLoggerTo(w io.Writer, level LogLevel, format LogFormat) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.MessageKey = "message"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	enc := zapcore.NewJSONEncoder(encCfg)
	if format == FormatText {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level.zap())
	return &Logger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.FatalLevel))}
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// WithField returns a logger carrying key=value
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(field(key, value))
}

// WithFields returns a logger carrying every entry of fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zf := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zf = append(zf, field(k, v))
	}
	return l.with(zf...)
}

// WithError returns a logger carrying err under "error"
func (l *Logger) WithError(err error) *Logger {
	return l.with(zap.Error(err))
}

func (l *Logger) Debug(message string) { l.z.Debug(message) }
func (l *Logger) Info(message string)  { l.z.Info(message) }
func (l *Logger) Warn(message string)  { l.z.Warn(message) }
func (l *Logger) Error(message string) { l.z.Error(message) }

// Fatal logs and exits the process
func (l *Logger) Fatal(message string) { l.z.Fatal(message) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.z.Fatal(fmt.Sprintf(format, args...))
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func (level LogLevel) zap() zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelFatal:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

var global atomic.Pointer[Logger]

// InitGlobalLogger replaces the process-wide logger
func InitGlobalLogger(level LogLevel, format LogFormat) {
	global.Store(NewLogger(level, format))
}

// GetGlobalLogger returns the process-wide logger, creating an info/json
// one on first use
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewLogger(LevelInfo, FormatJSON))
	return global.Load()
}

type loggerKey struct{}

// WithLogger stores logger in ctx
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the global one
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

func Info(message string) { GetGlobalLogger().Info(message) }
func Warn(message string) { GetGlobalLogger().Warn(message) }

func WithField(key string, value interface{}) *Logger {
	return GetGlobalLogger().WithField(key, value)
}

func WithFields(fields map[string]interface{}) *Logger {
	return GetGlobalLogger().WithFields(fields)
}

func WithError(err error) *Logger {
	return GetGlobalLogger().WithError(err)
}

// ParseLogLevel maps LOG_LEVEL to a level, falling back to info
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	}
	log.Printf("Unknown log level %q, defaulting to info", level)
	return LevelInfo
}

// ParseLogFormat maps LOG_FORMAT to a format, falling back to json
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(format) {
	case "json", "":
		return FormatJSON
	case "text", "console":
		return FormatText
	}
	log.Printf("Unknown log format %q, defaulting to json", format)
	return FormatJSON
}
