package platform

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// InitLogger configures the root zerolog logger. CLIs get a console
// writer on stderr; set PRICEYY_LOG_JSON=true for machine-readable
// output in services.
func InitLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if GetEnvBool("PRICEYY_LOG_JSON", false) {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return logger.Level(lvl)
}
