// Package log provides the process-wide logger.
package log

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once   sync.Once
	mu     sync.RWMutex
	logger Logger = newLogger(DefaultConfig(), os.Stderr)
)

// GetLogger returns the process logger. Before Init it writes to stderr at
// info level.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init configures the process logger. Only the first call has effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		err = initByConfig(cfg)
	})
	return err
}

func initByConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := NewMultiWriter().Add(os.Stderr)
	if cfg.File.Filename != "" {
		out.AddFileAppender(cfg.File)
	}

	l := newLogger(cfg, out)
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

func newLogger(cfg Config, out io.Writer) Logger {
	l := logrus.New()
	l.SetFormatter(&formatter{
		pattern: cfg.Pattern,
		time:    cfg.Time,
	})
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetOutput(out)

	return &logrusAdapter{
		entry: logrus.NewEntry(l),
	}
}
