// Package log provides structured logging for loris using zap.
package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with loris-specific helpers.
type Logger struct {
	*zap.Logger
	onTrace func(seq uint64, category, name, detail string) // trace callback for events
}

var (
	// L is the global logger instance.
	L    *Logger
	once sync.Once
)

// Init initializes the global logger with the given configuration.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		L = New(debug)
	})
}

// New creates a new Logger instance.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}

	// Shorter timestamps in development
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Fallback to no-op if config fails
		logger = zap.NewNop()
	}

	return &Logger{Logger: logger}
}

// NewNop creates a no-op logger for testing.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// SetOnTrace sets the trace callback for stub call events.
func (l *Logger) SetOnTrace(fn func(seq uint64, category, name, detail string)) {
	l.onTrace = fn
}

// Trace logs a stub call and invokes the trace callback if set.
// This is the primary method for stubs to report their activity.
// seq is the call sequence number within the run.
func (l *Logger) Trace(seq uint64, category, name, detail string) {
	// Always call trace callback (for trace event collection)
	if l.onTrace != nil {
		l.onTrace(seq, category, name, detail)
	}

	// Log at debug level with structured fields
	l.Debug("stub",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("detail", detail),
		zap.Uint64("seq", seq),
	)
}

// TraceSimple logs a stub call without a sequence number (uses 0).
func (l *Logger) TraceSimple(category, name, detail string) {
	l.Trace(0, category, name, detail)
}

// Stub logs stub installation/registration events.
func (l *Logger) Stub(msg string, fields ...zap.Field) {
	l.Debug(msg, fields...)
}

// StubInstall logs when a stub is bound to a module import.
// source identifies how the import matched: "import", "alias", or a
// detector name.
func (l *Logger) StubInstall(category, name, source string) {
	l.Debug("installed",
		zap.String("cat", category),
		zap.String("fn", name),
		zap.String("src", source),
	)
}

// StubFallback logs when a fallback host function is generated for an
// import no stub matched.
func (l *Logger) StubFallback(name string) {
	l.Debug("fallback",
		zap.String("fn", name),
		zap.String("ret", "0"),
	)
}

// DetectorActivate logs when a detector is activated.
func (l *Logger) DetectorActivate(name, description string) {
	l.Info("detector",
		zap.String("name", name),
		zap.String("desc", description),
	)
}

// DetectorRegister logs when a detector is registered.
func (l *Logger) DetectorRegister(name, description string, patterns []string) {
	l.Debug("detector registered",
		zap.String("name", name),
		zap.String("desc", description),
		zap.Strings("patterns", patterns),
	)
}

// WithCategory returns a logger with the category field preset.
func (l *Logger) WithCategory(category string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(zap.String("cat", category)),
		onTrace: l.onTrace,
	}
}

// Hex formats a guest address as a hex string for logging.
func Hex(addr uint64) string {
	return "0x" + hexString(addr)
}

func hexString(v uint64) string {
	const digits = "0123456789abcdef"
	if v == 0 {
		return "0"
	}
	buf := make([]byte, 16)
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	return string(buf[i:])
}

// Field helpers for common patterns.

// Ptr creates a guest-pointer field.
func Ptr(name string, ptr uint32) zap.Field {
	return zap.String(name, Hex(uint64(ptr)))
}

// Size creates a size field.
func Size(size uint64) zap.Field {
	return zap.Uint64("size", size)
}

// Fn creates a function name field.
func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// Module creates a module-path field.
func Module(path string) zap.Field {
	return zap.String("module", path)
}
