package models

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the console logger used by the cli. Debug output is enabled by Verbose.
func (c *Config) NewLogger() zerolog.Logger {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if c.Verbose {
		level = zerolog.DebugLevel
	}
	w := zerolog.ConsoleWriter{Out: out, NoColor: !c.Color, TimeFormat: "15:04:05"}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
