package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/YuminosukeSato/gbforecast/pkg/errors"
)

// FileOptions configures the rotating JSON log file.
type FileOptions struct {
	Filename    string
	Level       Level
	MaxBytes    int64
	BackupCount int
}

// Options configures the zerolog provider.
type Options struct {
	AppName      string
	Level        Level
	Console      bool
	ConsoleLevel Level
	// Console output goes to Stderr when nil.
	ConsoleOut io.Writer
	File       *FileOptions
}

// ZerologProvider is the default LoggerProvider.
type ZerologProvider struct {
	mu     sync.RWMutex
	base   zerolog.Logger
	level  *levelVar
	closer io.Closer
}

// levelVar is shared by every logger derived from one provider so SetLevel
// applies to loggers that were handed out earlier.
type levelVar struct {
	mu sync.RWMutex
	l  Level
}

func (v *levelVar) get() Level {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.l
}

func (v *levelVar) set(l Level) {
	v.mu.Lock()
	v.l = l
	v.mu.Unlock()
}

// NewZerologProvider builds a provider from opts. Close releases the log file.
func NewZerologProvider(opts Options) (*ZerologProvider, error) {
	var writers []io.Writer
	var closer io.Closer

	if opts.File != nil && opts.File.Filename != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File.Filename), 0o755); err != nil {
			return nil, errors.Wrapf(err, "create log directory for %s", opts.File.Filename)
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File.Filename,
			MaxSize:    maxSizeMB(opts.File.MaxBytes),
			MaxBackups: opts.File.BackupCount,
		}
		closer = lj
		writers = append(writers, &levelFilterWriter{w: lj, min: toZerologLevel(opts.File.Level)})
	}

	if opts.Console || len(writers) == 0 {
		out := opts.ConsoleOut
		if out == nil {
			out = os.Stderr
		}
		cw := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		writers = append(writers, &levelFilterWriter{w: cw, min: toZerologLevel(opts.ConsoleLevel)})
	}

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp()
	if opts.AppName != "" {
		ctx = ctx.Str("app", opts.AppName)
	}

	return &ZerologProvider{
		base:   ctx.Logger(),
		level:  &levelVar{l: opts.Level},
		closer: closer,
	}, nil
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zeroLogger{z: p.base, level: p.level}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &zeroLogger{z: p.base.With().Str(ComponentKey, name).Logger(), level: p.level}
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *ZerologProvider) SetLevel(level Level) {
	p.level.set(level)
}

// Close flushes and closes the rotating file, if any.
func (p *ZerologProvider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

type zeroLogger struct {
	z     zerolog.Logger
	level *levelVar
}

func (l *zeroLogger) Debug(msg string, fields ...any) { l.emit(LevelDebug, msg, fields) }
func (l *zeroLogger) Info(msg string, fields ...any)  { l.emit(LevelInfo, msg, fields) }
func (l *zeroLogger) Warn(msg string, fields ...any)  { l.emit(LevelWarn, msg, fields) }
func (l *zeroLogger) Error(msg string, fields ...any) { l.emit(LevelError, msg, fields) }

func (l *zeroLogger) With(fields ...any) Logger {
	zctx := l.z.With()
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			zctx = zctx.AnErr("error", err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		zctx = zctx.Interface(fmt.Sprint(fields[i]), normalizeValue(fields[i+1]))
	}
	return &zeroLogger{z: zctx.Logger(), level: l.level}
}

func (l *zeroLogger) Enabled(_ context.Context, level Level) bool {
	return level >= l.level.get()
}

func (l *zeroLogger) emit(level Level, msg string, fields []any) {
	if level < l.level.get() {
		return
	}
	ev := l.z.WithLevel(toZerologLevel(level))
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			addError(ev, "error", err)
			fields = fields[1:]
		}
	}
	for i := 0; i+1 < len(fields); i += 2 {
		addField(ev, fmt.Sprint(fields[i]), fields[i+1])
	}
	if len(fields)%2 == 1 {
		ev.Interface("!BADKEY", fields[len(fields)-1])
	}
	ev.Msg(msg)
}

func addField(ev *zerolog.Event, key string, v any) {
	switch val := v.(type) {
	case string:
		ev.Str(key, val)
	case int:
		ev.Int(key, val)
	case int64:
		ev.Int64(key, val)
	case float64:
		ev.Float64(key, val)
	case bool:
		ev.Bool(key, val)
	case time.Duration:
		ev.Dur(key, val)
	case time.Time:
		ev.Time(key, val)
	case []string:
		ev.Strs(key, val)
	case error:
		addError(ev, key, val)
	case zerolog.LogObjectMarshaler:
		ev.Object(key, val)
	default:
		ev.Interface(key, val)
	}
}

func normalizeValue(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

func toZerologLevel(l Level) zerolog.Level {
	switch {
	case l <= LevelDebug:
		return zerolog.DebugLevel
	case l <= LevelInfo:
		return zerolog.InfoLevel
	case l <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func maxSizeMB(maxBytes int64) int {
	const mb = 1 << 20
	if maxBytes <= 0 {
		return 10
	}
	size := int((maxBytes + mb - 1) / mb)
	if size < 1 {
		size = 1
	}
	return size
}


// ===========================================================================
//
//	Global provider
//
// ===========================================================================

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider
)

func init() {
	// console only, so construction cannot fail
	p, _ := NewZerologProvider(Options{Level: LevelInfo, Console: true, ConsoleLevel: LevelInfo})
	SetProvider(p)
}

// SetProvider replaces the global provider and routes errors.Warn through it.
func SetProvider(p LoggerProvider) {
	globalMu.Lock()
	globalProvider = p
	globalMu.Unlock()

	warnLogger := p.GetLoggerWithName("warnings")
	errors.SetZerologWarnFunc(func(w error) {
		warnLogger.Warn(w.Error(), "warning", w)
	})
}

// GetProvider returns the current global provider.
func GetProvider() LoggerProvider {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider
}

// GetLogger returns the global default logger.
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName returns a component logger from the global provider.
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}

// Setup builds a ZerologProvider from opts and installs it globally.
func Setup(opts Options) (*ZerologProvider, error) {
	p, err := NewZerologProvider(opts)
	if err != nil {
		return nil, err
	}
	SetProvider(p)
	return p, nil
}
