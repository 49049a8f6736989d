package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatPretty  = "pretty"

	// EnvPrefix prefixes the variables read by ConfigFromEnv.
	EnvPrefix = "PIPEKIT_LOG_"
)

// Logger is a zerolog logger tagged with the service that owns it.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New creates a logger writing to the configured output.
func New(cfg *Config, serviceName string) *Logger {
	return NewWithWriter(outputWriter(cfg.Output), cfg, serviceName)
}

// NewWithWriter creates a logger that writes to w instead of the configured
// output. An unknown level falls back to info.
func NewWithWriter(w io.Writer, cfg *Config, serviceName string) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(w)
	if isConsole(cfg.Format) {
		zl = newConsoleLogger(cfg, w, serviceName)
	}
	ctx := zl.Level(level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	if serviceName != "" && serviceName != "default" {
		ctx = ctx.Str(FieldService, serviceName)
	}
	return &Logger{zl: ctx.Logger(), service: serviceName}
}

// NewDefault creates an info-level console logger on stdout.
func NewDefault(serviceName string) *Logger {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return New(cfg, serviceName)
}

// NewFromEnv creates a logger configured by ConfigFromEnv.
func NewFromEnv(serviceName string) *Logger {
	return New(ConfigFromEnv(), serviceName)
}

// ConfigFromEnv reads PIPEKIT_LOG_LEVEL, _FORMAT, _OUTPUT, _NO_COLOR and
// _TIMESTAMP. Unset variables keep their defaults.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Level:  os.Getenv(EnvPrefix + "LEVEL"),
		Format: os.Getenv(EnvPrefix + "FORMAT"),
		Output: os.Getenv(EnvPrefix + "OUTPUT"),
	}
	cfg.ApplyDefaults()
	cfg.NoColor = envBool(EnvPrefix+"NO_COLOR", false)
	cfg.Timestamp = envBool(EnvPrefix+"TIMESTAMP", true)
	return cfg
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// WithContext returns a logger enriched with the trace IDs and the scoped
// fields carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	zc := l.zl.With()
	if v := ctx.Value(contextKey(FieldTraceID)); v != nil {
		zc = zc.Str(FieldTraceID, fmt.Sprint(v))
	}
	if v := ctx.Value(contextKey(FieldSpanID)); v != nil {
		zc = zc.Str(FieldSpanID, fmt.Sprint(v))
	}
	for k, v := range ScopeFields(ctx) {
		zc = zc.Interface(k, v)
	}
	return l.derive(zc)
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.zl.With().Str(FieldComponent, name))
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return l.derive(l.zl.With().Fields(fields))
}

// WithError returns a logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zl.With().Err(err))
}

// Zerolog returns the underlying zerolog.Logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) derive(zc zerolog.Context) *Logger {
	return &Logger{zl: zc.Logger(), service: l.service}
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	emit(l.zl.Error(), msg, fields)
}

// Exception logs msg at error level with err attached under the error field.
// A nil err logs like Error.
func (l *Logger) Exception(msg string, err error, fields ...map[string]interface{}) {
	event := l.zl.Error()
	if err != nil {
		event = event.Err(err)
	}
	emit(event, msg, fields)
}

func emit(event *zerolog.Event, msg string, fields []map[string]interface{}) {
	for _, fm := range fields {
		event.Fields(fm)
	}
	event.Msg(msg)
}

var global atomic.Pointer[Logger]

// SetGlobalLogger replaces the process-wide fallback logger. Pipelines
// created without WithLogger use it.
func SetGlobalLogger(l *Logger) { global.Store(l) }

// GetGlobalLogger returns the global logger, creating a default one on first
// use.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewDefault("default"))
	return global.Load()
}

// Info logs through the global logger.
func Info(msg string, fields ...map[string]interface{}) {
	GetGlobalLogger().Info(msg, fields...)
}

// WithComponent returns a component-tagged logger from the global logger.
func WithComponent(name string) *Logger {
	return GetGlobalLogger().WithComponent(name)
}

func isConsole(format string) bool {
	switch strings.ToLower(format) {
	case FormatConsole, FormatPretty, "text":
		return true
	}
	return false
}

func outputWriter(output string) *os.File {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

var levelTags = map[string]struct{ plain, color string }{
	"DEBUG": {"[DBG]", "\033[36m[DBG]\033[0m"},
	"INFO":  {"[INF]", "\033[32m[INF]\033[0m"},
	"WARN":  {"[WRN]", "\033[33m[WRN]\033[0m"},
	"ERROR": {"[ERR]", "\033[31m[ERR]\033[0m"},
	"FATAL": {"[FTL]", "\033[35m[FTL]\033[0m"},
}

// newConsoleLogger renders "[SVC][LVL] message key:value", with the first
// three letters of the service as its tag.
func newConsoleLogger(cfg *Config, w io.Writer, serviceName string) zerolog.Logger {
	svcTag := ""
	if serviceName != "default" && len(serviceName) >= 3 {
		svcTag = "[" + strings.ToUpper(serviceName[:3]) + "]"
		if !cfg.NoColor {
			svcTag = "\033[34m" + svcTag + "\033[0m"
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    cfg.NoColor,
		FormatLevel: func(i interface{}) string {
			lvl := strings.ToUpper(fmt.Sprint(i))
			tag, ok := levelTags[lvl]
			switch {
			case !ok:
				return svcTag + "[" + lvl + "]"
			case cfg.NoColor:
				return svcTag + tag.plain
			default:
				return svcTag + tag.color
			}
		},
		FormatFieldName: func(i interface{}) string {
			return fmt.Sprintf("%s:", i)
		},
		FormatFieldValue: func(i interface{}) string {
			if i == nil {
				return ""
			}
			return fmt.Sprint(i)
		},
	})
}
