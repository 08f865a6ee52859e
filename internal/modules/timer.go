package modules

import (
	"context"
	"time"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// MaxSleep bounds Timer.sleep.
const MaxSleep = time.Hour

// Timer exposes wall-clock helpers.
//
//	sleep {ms: integer} -> {sleptMs: number}, completed from a timer goroutine
//	now   {}            -> unix milliseconds
type Timer struct {
	commands *dispatch.CommandSet
	now      func() time.Time
}

// NewTimer returns a Timer using the system clock.
func NewTimer() *Timer {
	t := &Timer{now: time.Now}
	t.commands = dispatch.NewCommandSet(
		dispatch.Command{
			Name:    "sleep",
			Args:    dispatch.StrictArgs(dispatch.Required("ms", dispatch.FieldInteger)),
			Handler: t.sleep,
		},
		dispatch.Command{
			Name: "now",
			Args: dispatch.StrictArgs(),
			Handler: dispatch.SyncHandler(func(context.Context, value.Value) (value.Value, error) {
				return value.Int(t.now().UnixMilli()), nil
			}),
		},
	)
	return t
}

// Command implements dispatch.Target.
func (t *Timer) Command(name string) (dispatch.Command, bool) {
	return t.commands.Command(name)
}

func (t *Timer) sleep(_ context.Context, call *dispatch.Call) {
	ms, _ := call.Args().Get("ms").AsInt()
	if ms < 0 || ms > MaxSleep.Milliseconds() {
		call.Reject(dispatch.NewArgumentError("commandArgs.ms", "must be between 0 and %d", MaxSleep.Milliseconds()))
		return
	}
	d := time.Duration(ms) * time.Millisecond
	start := t.now()
	time.AfterFunc(d, func() {
		slept := t.now().Sub(start)
		call.Resolve(value.Map(value.NewObject().Set("sleptMs", value.Int(slept.Milliseconds()))))
	})
}

// Register adds the built-in modules to reg.
func Register(reg *dispatch.Registry, logger *Logger, timer *Timer) error {
	if err := reg.Register(LoggerName, logger); err != nil {
		return err
	}
	return reg.Register(TimerName, timer)
}
