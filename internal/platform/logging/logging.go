package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      zerolog.Level
	Console    bool
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds the process logger. Output goes to out (stdout when nil) as JSON,
// or through a ConsoleWriter when Console is set. A non-empty File adds a
// rotating JSON file sink. The returned closer releases the file.
func New(out io.Writer, opts Options) (zerolog.Logger, io.Closer) {
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	logger := zerolog.New(out).Level(opts.Level).With().Timestamp().Logger()
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
