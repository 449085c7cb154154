package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	ipfslog "github.com/ipfs/go-log/v2"
	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SystemName is the go-log subsystem every evreg logger is registered under.
const SystemName = "evreg"

// Logger is the structured logger used across evreg packages.
type Logger interface {
	// Info takes a message and a set of key/value pairs and logs with level INFO.
	// The key of the tuple must be a string.
	Info(msg string, keyVals ...any)

	// Warn takes a message and a set of key/value pairs and logs with level WARN.
	// The key of the tuple must be a string.
	Warn(msg string, keyVals ...any)

	// Error takes a message and a set of key/value pairs and logs with level ERR.
	// The key of the tuple must be a string.
	Error(msg string, keyVals ...any)

	// Debug takes a message and a set of key/value pairs and logs with level DEBUG.
	// The key of the tuple must be a string.
	Debug(msg string, keyVals ...any)

	// With returns a new wrapped logger with additional context provided by a set.
	With(keyVals ...any) Logger

	// Impl returns the underlying *ipfslog.ZapEventLogger.
	Impl() any
}

type zapLogger struct {
	logger *ipfslog.ZapEventLogger
}

// NewLogger creates a logger writing to dst. A nil dst means stderr.
func NewLogger(dst io.Writer, options ...Option) Logger {
	config := &Config{
		Level: zapcore.InfoLevel,
	}
	for _, opt := range options {
		opt(config)
	}

	if dst == nil {
		dst = os.Stderr
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if config.EnableJSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		if config.Color {
			encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	zapOpts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if config.Trace {
		zapOpts = append(zapOpts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(dst), config.Level)
	sugared := zap.New(core, zapOpts...).Named(SystemName).Sugar()

	return &zapLogger{
		logger: &ipfslog.ZapEventLogger{SugaredLogger: *sugared},
	}
}

// NewSystemLogger returns the go-log registered logger for a subsystem of evreg,
// honoring the levels configured with ipfslog.SetupLogging / GOLOG_LOG_LEVEL.
func NewSystemLogger(subsystem string) Logger {
	return &zapLogger{logger: ipfslog.Logger(SystemName + "/" + subsystem)}
}

// NewNopLogger creates a no-op logger.
func NewNopLogger() Logger {
	zapLog := zap.New(zapcore.NewNopCore()).Sugar()
	return &zapLogger{
		logger: &ipfslog.ZapEventLogger{SugaredLogger: *zapLog},
	}
}

// NewTestLogger creates a debug level logger that forwards output to t.Log.
func NewTestLogger(t TestingT) Logger {
	return NewLogger(&testWriter{t: t}, LevelOption(zerolog.DebugLevel))
}

// Info logs at info level with key-value pairs
func (z *zapLogger) Info(msg string, keyVals ...any) {
	z.logger.Infow(msg, keyVals...)
}

// Warn logs at warn level with key-value pairs
func (z *zapLogger) Warn(msg string, keyVals ...any) {
	z.logger.Warnw(msg, keyVals...)
}

// Error logs at error level with key-value pairs
func (z *zapLogger) Error(msg string, keyVals ...any) {
	z.logger.Errorw(msg, keyVals...)
}

// Debug logs at debug level with key-value pairs
func (z *zapLogger) Debug(msg string, keyVals ...any) {
	z.logger.Debugw(msg, keyVals...)
}

func (z *zapLogger) With(keyVals ...any) Logger {
	sugaredLogger := z.logger.With(keyVals...)
	return &zapLogger{
		logger: &ipfslog.ZapEventLogger{SugaredLogger: *sugaredLogger},
	}
}

func (z *zapLogger) Impl() any {
	return z.logger
}

// Option defines configuration options for the logger
type Option func(*Config)

// Config holds logger configuration
type Config struct {
	Level      zapcore.Level
	EnableJSON bool
	Trace      bool
	Color      bool
}

// OutputJSONOption enables JSON output format
func OutputJSONOption() Option {
	return func(c *Config) {
		c.EnableJSON = true
	}
}

// LevelOption sets the log level
func LevelOption(level zerolog.Level) Option {
	return func(c *Config) {
		switch level {
		case zerolog.TraceLevel, zerolog.DebugLevel:
			c.Level = zapcore.DebugLevel
		case zerolog.WarnLevel:
			c.Level = zapcore.WarnLevel
		case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
			c.Level = zapcore.ErrorLevel
		default:
			c.Level = zapcore.InfoLevel
		}
	}
}

// TraceOption enables or disables stack traces on error logs
func TraceOption(enabled bool) Option {
	return func(c *Config) {
		c.Trace = enabled
	}
}

// ColorOption enables or disables colored levels in text output
func ColorOption(enabled bool) Option {
	return func(c *Config) {
		c.Color = enabled
	}
}

// ParseLevel parses a level name such as "debug" or "warn" into a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// TestingT is an interface for testing.T
type TestingT interface {
	Log(args ...any)
	Logf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
}

type testWriter struct {
	t TestingT
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
