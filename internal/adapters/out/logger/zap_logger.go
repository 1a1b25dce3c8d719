package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// ZapLogger реализует LoggerPort поверх zap для JSON логов
type ZapLogger struct {
	logger        *zap.Logger
	module        string
	defaultFields out.LogFields
}

func NewZapLogger(level out.LogLevel, development bool) (*ZapLogger, error) {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "event",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel(level)),
		Development:      development,
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	zapLogger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger.zap.build_failed: %w", err)
	}

	return NewZapLoggerFrom(zapLogger), nil
}

// NewZapLoggerFrom оборачивает готовый логгер, например zap.NewNop() в тестах
func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{
		logger:        logger,
		module:        "unknown",
		defaultFields: make(out.LogFields),
	}
}

func zapLevel(level out.LogLevel) zapcore.Level {
	switch level {
	case out.LogLevelDebug:
		return zap.DebugLevel
	case out.LogLevelWarn:
		return zap.WarnLevel
	case out.LogLevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

func (l *ZapLogger) WithFields(fields out.LogFields) out.LoggerPort {
	merged := make(out.LogFields, len(l.defaultFields)+len(fields))
	for k, v := range l.defaultFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &ZapLogger{logger: l.logger, module: l.module, defaultFields: merged}
}

func (l *ZapLogger) WithModule(module string) out.LoggerPort {
	return &ZapLogger{logger: l.logger, module: module, defaultFields: l.defaultFields}
}

func (l *ZapLogger) Debug(event string, fields out.LogFields) {
	l.logger.Debug(event, l.zapFields(fields)...)
}

func (l *ZapLogger) Info(event string, fields out.LogFields) {
	l.logger.Info(event, l.zapFields(fields)...)
}

func (l *ZapLogger) Warn(event string, fields out.LogFields) {
	l.logger.Warn(event, l.zapFields(fields)...)
}

func (l *ZapLogger) Error(event string, fields out.LogFields) {
	l.logger.Error(event, l.zapFields(fields)...)
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) zapFields(fields out.LogFields) []zap.Field {
	result := make([]zap.Field, 0, len(l.defaultFields)+len(fields)+1)
	result = append(result, zap.String("module", l.module))
	for k, v := range l.defaultFields {
		if _, overridden := fields[k]; overridden {
			continue
		}
		result = append(result, zap.Any(k, v))
	}
	for k, v := range fields {
		result = append(result, zap.Any(k, v))
	}
	return result
}
