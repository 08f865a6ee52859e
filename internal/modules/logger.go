// Package modules provides the built-in native modules reachable through
// dispatchToModule.
package modules

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// Module names.
const (
	LoggerName = "Logger"
	TimerName  = "Timer"
)

type logEntry struct {
	level   slog.Level
	message string
	fields  *value.Object
}

// Logger buffers script log entries and writes them to a slog.Logger on
// flush.
//
//	log   {level?: string, message: string, fields?: map} -> null
//	flush {}                                              -> {flushed: number}
type Logger struct {
	commands *dispatch.CommandSet
	out      *slog.Logger

	mu      sync.Mutex
	entries []logEntry
}

// NewLogger returns a Logger writing to out (slog.Default if nil).
func NewLogger(out *slog.Logger) *Logger {
	if out == nil {
		out = slog.Default()
	}
	l := &Logger{out: out}
	l.commands = dispatch.NewCommandSet(
		dispatch.Command{
			Name: "log",
			Args: dispatch.StrictArgs(
				dispatch.Optional("level", dispatch.FieldString),
				dispatch.Required("message", dispatch.FieldString),
				dispatch.Optional("fields", dispatch.FieldMap),
			),
			Handler: dispatch.SyncHandler(l.log),
		},
		dispatch.Command{
			Name:    "flush",
			Args:    dispatch.StrictArgs(),
			Handler: dispatch.SyncHandler(l.flush),
		},
	)
	return l
}

// Command implements dispatch.Target.
func (l *Logger) Command(name string) (dispatch.Command, bool) {
	return l.commands.Command(name)
}

// Buffered returns the number of entries awaiting flush.
func (l *Logger) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Logger) log(_ context.Context, args value.Value) (value.Value, error) {
	level := slog.LevelInfo
	if s, ok := args.Get("level").AsString(); ok {
		var err error
		if level, err = parseLevel(s); err != nil {
			return value.Null(), dispatch.NewArgumentError("commandArgs.level", "%v", err)
		}
	}
	message, _ := args.Get("message").AsString()
	var fields *value.Object
	if f := args.Get("fields"); !f.IsNull() {
		fields, _ = f.Clone().AsObject()
	}

	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, message: message, fields: fields})
	l.mu.Unlock()
	return value.Null(), nil
}

func (l *Logger) flush(ctx context.Context, _ value.Value) (value.Value, error) {
	l.mu.Lock()
	entries := l.entries
	l.entries = nil
	l.mu.Unlock()

	for _, e := range entries {
		var attrs []slog.Attr
		if e.fields != nil {
			attrs = make([]slog.Attr, 0, e.fields.Len())
			e.fields.Range(func(key string, val value.Value) bool {
				attrs = append(attrs, slog.Any(key, val))
				return true
			})
		}
		l.out.LogAttrs(ctx, e.level, e.message, attrs...)
	}
	return value.Map(value.NewObject().Set("flushed", value.Int(int64(len(entries))))), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(strings.ToUpper(s)))
	return level, err
}
