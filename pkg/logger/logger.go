package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
	mu           sync.RWMutex
)

// fixedWidthColorLevelEncoder pads the level to 5 characters and colours it.
func fixedWidthColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	s := level.CapitalString()
	for len(s) < 5 {
		s += " "
	}
	switch level {
	case zapcore.DebugLevel:
		s = "\x1b[35m" + s + "\x1b[0m"
	case zapcore.InfoLevel:
		s = "\x1b[34m" + s + "\x1b[0m"
	case zapcore.WarnLevel:
		s = "\x1b[33m" + s + "\x1b[0m"
	case zapcore.ErrorLevel:
		s = "\x1b[31m" + s + "\x1b[0m"
	case zapcore.FatalLevel, zapcore.PanicLevel, zapcore.DPanicLevel:
		s = "\x1b[31;1m" + s + "\x1b[0m"
	}
	enc.AppendString(s)
}

// Init sets up the global logger. Only the first call has any effect.
// level: debug, info, warn, error
// format: json, console
func Init(level, format string) error {
	var err error
	once.Do(func() {
		var l *zap.Logger
		l, err = New(level, format, os.Stdout)
		if err == nil {
			set(l)
		}
	})
	return err
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info", "":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New builds a logger writing to w without touching the global one.
func New(level, format string, w io.Writer) (*zap.Logger, error) {
	var encoderConfig zapcore.EncoderConfig
	if format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = fixedWidthColorLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("[2006-01-02 15:04:05]")
		encoderConfig.EncodeCaller = func(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
			const width = 28
			s := caller.TrimmedPath()
			if len(s) < width {
				s += strings.Repeat(" ", width-len(s))
			}
			enc.AppendString(s)
		}
		encoderConfig.ConsoleSeparator = " "
	}
	encoderConfig.TimeKey = "time"

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(w), ParseLevel(level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func set(l *zap.Logger) {
	mu.Lock()
	globalLogger = l
	mu.Unlock()
}

// Get returns the global logger, initialising it with defaults if needed.
func Get() *zap.Logger {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		_ = Init("info", "console")
		mu.RLock()
		l = globalLogger
		mu.RUnlock()
	}
	return l
}

// OrGlobal returns l, or the global logger when l is nil.
func OrGlobal(l *zap.Logger) *zap.Logger {
	if l != nil {
		return l
	}
	return Get()
}

// Sync flushes buffered entries, giving up after 200ms.
func Sync() {
	mu.RLock()
	l := globalLogger
	mu.RUnlock()
	if l == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		_ = l.Sync()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
	}
}

func Debug(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	Get().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}

// With returns the global logger with fields attached.
func With(fields ...zap.Field) *zap.Logger {
	return Get().With(fields...)
}

// Named returns a named child of the global logger.
func Named(name string) *zap.Logger {
	return Get().Named(name)
}

// Field constructors re-exported from zap.
var (
	String   = zap.String
	Stringer = zap.Stringer
	Int      = zap.Int
	Int64    = zap.Int64
	Uint8    = zap.Uint8
	Uint16   = zap.Uint16
	Uint32   = zap.Uint32
	Uint64   = zap.Uint64
	Bool     = zap.Bool
	Duration = zap.Duration
	Time     = zap.Time
	Err      = zap.Error
	Any      = zap.Any
)
