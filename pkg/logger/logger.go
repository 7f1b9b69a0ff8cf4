package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// Options controls where log lines go and at which level.
type Options struct {
	Level   string
	File    string
	Verbose bool
	Output  io.Writer
}

func NewLogger(verbose bool) *Logger {
	return New(Options{Verbose: verbose})
}

// New builds a logger writing to stdout, tee'd into a rotating file when
// Options.File is set.
func New(opts Options) *Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   opts.Output == nil,
	})

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	var file *lumberjack.Logger
	if strings.TrimSpace(opts.File) != "" {
		file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		out = io.MultiWriter(out, file)
	}
	log.SetOutput(out)
	log.SetLevel(resolveLevel(opts))

	return &Logger{Logger: log, file: file}
}

func resolveLevel(opts Options) logrus.Level {
	if opts.Verbose {
		return logrus.DebugLevel
	}
	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// Close flushes and closes the rotating log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(Options{Output: io.Discard})
}
