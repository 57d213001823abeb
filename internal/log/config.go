package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

type Config struct {
	Level   string          `mapstructure:"level"`
	Pattern string          `mapstructure:"pattern"`
	Time    string          `mapstructure:"time"`
	File    FileAppenderOpt `mapstructure:"file"`
}

func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Pattern: DefaultPattern,
		Time:    DefaultTime,
	}
}

// Validate checks the level and fills an empty pattern or time layout.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	if strings.TrimSpace(c.Pattern) == "" {
		c.Pattern = DefaultPattern
	}
	if !strings.HasSuffix(c.Pattern, "\n") {
		c.Pattern += "\n"
	}
	if c.Time == "" {
		c.Time = DefaultTime
	}
	return nil
}
