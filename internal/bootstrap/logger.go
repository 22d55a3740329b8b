package bootstrap

import (
	"fmt"

	"basket_swap/internal/core"
	"basket_swap/pkg/logging"
)

// InitLogger builds the zap logger for cfg and installs it as the global logger
func InitLogger(cfg *Config) (core.ILogger, error) {
	zl, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger := zl.WithFields(map[string]interface{}{
		"service": cfg.Telemetry.ServiceName,
		"venue":   cfg.App.Venue,
	})
	logging.SetGlobalLogger(logger)
	return logger, nil
}
