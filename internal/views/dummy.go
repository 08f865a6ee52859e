package views

import (
	"context"
	"sync"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// DefaultColor is the color of a new or reset DummyView.
const DefaultColor = "white"

// DummyView is a minimal view used for wiring checks. It holds a color and
// counts how often it was changed.
type DummyView struct {
	commands *dispatch.CommandSet

	mu      sync.Mutex
	color   string
	updates int64
	cleaned bool
}

// NewDummyView returns a view with the default color.
func NewDummyView() *DummyView {
	v := &DummyView{color: DefaultColor}
	v.commands = dispatch.NewCommandSet(
		dispatch.Command{
			Name:    "setColor",
			Args:    dispatch.StrictArgs(dispatch.Required("color", dispatch.FieldString)),
			Handler: dispatch.SyncHandler(v.setColor),
		},
		dispatch.Command{
			Name:    "getState",
			Args:    dispatch.StrictArgs(),
			Handler: dispatch.SyncHandler(v.getState),
		},
		dispatch.Command{
			Name:    "reset",
			Args:    dispatch.StrictArgs(),
			Handler: dispatch.SyncHandler(v.reset),
		},
	)
	return v
}

// Command implements dispatch.Target.
func (v *DummyView) Command(name string) (dispatch.Command, bool) {
	return v.commands.Command(name)
}

func (v *DummyView) setColor(_ context.Context, args value.Value) (value.Value, error) {
	color, _ := args.Get("color").AsString()
	v.mu.Lock()
	v.color = color
	v.updates++
	v.mu.Unlock()
	return value.Null(), nil
}

func (v *DummyView) getState(context.Context, value.Value) (value.Value, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return value.Map(value.NewObject().
		Set("color", value.String(v.color)).
		Set("updates", value.Int(v.updates))), nil
}

func (v *DummyView) reset(context.Context, value.Value) (value.Value, error) {
	v.mu.Lock()
	v.color = DefaultColor
	v.updates = 0
	v.mu.Unlock()
	return value.Null(), nil
}

// Cleanup implements Cleaner.
func (v *DummyView) Cleanup(context.Context) error {
	v.mu.Lock()
	v.cleaned = true
	v.mu.Unlock()
	return nil
}

// CleanedUp reports whether Cleanup has run.
func (v *DummyView) CleanedUp() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cleaned
}
