package log

import "gopkg.in/natefinch/lumberjack.v2"

type FileAppenderOpt struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// NewFileWriter returns a rotating writer for options.Filename.
func NewFileWriter(options FileAppenderOpt) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   options.Filename,
		MaxSize:    options.MaxSize,    // megabytes
		MaxBackups: options.MaxBackups, // number of backups
		MaxAge:     options.MaxAge,     // days
		Compress:   options.Compress,
	}
}

func (m *MultiWriter) AddFileAppender(options FileAppenderOpt) *MultiWriter {
	m.writers = append(m.writers, NewFileWriter(options))
	return m
}
