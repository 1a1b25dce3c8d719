package logger

import (
	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
)

// New выбирает реализацию по LOG_FORMAT: console или json
func New(cfg *config.Config) (out.LoggerPort, error) {
	level := out.ParseLogLevel(cfg.Log.Level)

	if cfg.Log.Format == config.LogFormatJSON {
		return NewZapLogger(level, cfg.IsLocal())
	}

	return NewConsoleLogger(cfg.App.Timezone, level)
}
