package observability

import (
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/volcano-risk-service/internal/config"
)

// NewLogger builds the process logger from config and installs it as the slog default.
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "volcano-risk")
	slog.SetDefault(logger)
	return logger
}
