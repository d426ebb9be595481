package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// NewZerolog returns a Logger writing through zl. Arguments follow the slog
// convention: alternating keys and values, or slog.Attr.
func NewZerolog(zl zerolog.Logger) Logger {
	return &zeroLogger{zl: zl}
}

type zeroLogger struct {
	zl zerolog.Logger
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Debug(), msg, args)
}

func (l *zeroLogger) Info(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Info(), msg, args)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Warn(), msg, args)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, args ...any) {
	l.emit(ctx, l.zl.Error(), msg, args)
}

func (l *zeroLogger) With(args ...any) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(fields(args)).Logger()}
}

func (l *zeroLogger) emit(ctx context.Context, ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	if ctx != nil {
		ev = ev.Ctx(ctx)
	}
	ev.Fields(fields(args)).Msg(msg)
}

// fields flattens slog-style arguments into zerolog key/value pairs.
func fields(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			out = append(out, a.Key, a.Value.Resolve().Any())
		case string:
			if i+1 < len(args) {
				out = append(out, a, args[i+1])
				i++
			} else {
				out = append(out, "!BADKEY", a)
			}
		default:
			out = append(out, "!BADKEY", fmt.Sprint(a))
		}
	}
	return out
}
