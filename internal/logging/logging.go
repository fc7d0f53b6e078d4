package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the process-wide logger. Dev gets a console writer, anything
// else emits JSON lines.
func New(env, service string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	if env == "dev" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Str("service", service).Logger()
	}
	return logger
}
