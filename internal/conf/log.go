package conf

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the rotating log file written under LogDir
const LogFileName = "relay.log"

// NewLogger builds the root logger: a console writer on stdout plus a
// rotating file when dir is set. Unknown levels fall back to info.
func NewLogger(level, dir string) (zerolog.Logger, io.Closer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}}

	var closer io.Closer = nopCloser{}
	if dir != "" {
		if mkErr := os.MkdirAll(dir, 0755); mkErr == nil {
			file := &lumberjack.Logger{
				Filename:   filepath.Join(dir, LogFileName),
				MaxSize:    20, // megabytes
				MaxBackups: 7,
				MaxAge:     30, // days
			}
			writers = append(writers, file)
			closer = file
		}
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Logger()

	if err != nil {
		logger.Warn().Str("log_level", level).Msg("Unknown log level, using info")
	}
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
