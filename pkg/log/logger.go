package log

import (
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/godetect/pkg/errors"
)

var (
	loggerMu sync.RWMutex

	// The default logger writes to stderr at warn level, so library users
	// see warnings without configuring anything. Verbose detectors replace
	// this via SetLogger or construct their own.
	defaultLogger Logger = NewZerologLogger(
		zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel),
	)
)

func init() {
	// Route library warnings (ConvergenceWarning etc.) through zerolog.
	errors.SetZerologWarnFunc(func(warning error) {
		GetLogger().Warn("detector warning", "warning", warning)
	})
}

// GetLogger returns the library-wide default logger.
func GetLogger() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// SetLogger replaces the library-wide default logger.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = l
}

// GetLoggerWithName returns the default logger with the model name attached.
func GetLoggerWithName(name string) Logger {
	return GetLogger().With(ModelNameKey, name)
}

// NewZerologLogger wraps a zerolog.Logger in the Logger interface.
func NewZerologLogger(zl zerolog.Logger) Logger {
	return &zerologLogger{zl: zl}
}

type zerologLogger struct {
	zl zerolog.Logger
}

func (l *zerologLogger) Debug(msg string, fields ...any) {
	l.log(l.zl.Debug(), msg, fields)
}

func (l *zerologLogger) Info(msg string, fields ...any) {
	l.log(l.zl.Info(), msg, fields)
}

func (l *zerologLogger) Warn(msg string, fields ...any) {
	l.log(l.zl.Warn(), msg, fields)
}

func (l *zerologLogger) Error(msg string, fields ...any) {
	l.log(l.zl.Error(), msg, fields)
}

func (l *zerologLogger) With(fields ...any) Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &zerologLogger{zl: ctx.Logger()}
}

func (l *zerologLogger) log(e *zerolog.Event, msg string, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			e = e.Object(key, v)
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	e.Msg(msg)
}
