package feishu

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// larkLogger routes SDK logging into zerolog
type larkLogger struct {
	log zerolog.Logger
}

func newLarkLogger(log zerolog.Logger) *larkLogger {
	return &larkLogger{log: log.With().Str("source", "sdk").Logger()}
}

func (l *larkLogger) Debug(ctx context.Context, args ...interface{}) {
	l.log.Debug().Msg(fmt.Sprint(args...))
}

func (l *larkLogger) Info(ctx context.Context, args ...interface{}) {
	l.log.Info().Msg(fmt.Sprint(args...))
}

func (l *larkLogger) Warn(ctx context.Context, args ...interface{}) {
	l.log.Warn().Msg(fmt.Sprint(args...))
}

func (l *larkLogger) Error(ctx context.Context, args ...interface{}) {
	l.log.Error().Msg(fmt.Sprint(args...))
}
