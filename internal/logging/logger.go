package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/npmctl/internal/config"
)

// NewLogger creates a structured zerolog.Logger writing to stderr so that
// command output on stdout stays machine-readable.
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
