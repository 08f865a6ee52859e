package views

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

type recordingDelegate struct {
	allow bool

	mu     sync.Mutex
	events []string
}

func (d *recordingDelegate) record(event string) {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
}

func (d *recordingDelegate) CleanupRequested(id string) bool {
	d.record("requested:" + id)
	return d.allow
}

func (d *recordingDelegate) CleanupWillBegin(id string) { d.record("begin:" + id) }
func (d *recordingDelegate) CleanupCompleted(id string) { d.record("completed:" + id) }

type failingView struct{ *DummyView }

func (failingView) Cleanup(context.Context) error { return errors.New("still attached") }

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(Entry{View: NewDummyView()}))
	assert.Error(t, r.Register(Entry{ID: "view-1"}))

	view := NewDummyView()
	require.NoError(t, r.Register(Entry{ID: "view-1", View: view}))
	require.NoError(t, r.Register(Entry{ID: "view-0", View: NewDummyView()}))
	assert.Equal(t, []string{"view-0", "view-1"}, r.IDs())

	target, err := r.Resolve(context.Background(), "view-1")
	require.NoError(t, err)
	assert.Same(t, view, target)

	_, err = r.Resolve(context.Background(), "view-9")
	assert.ErrorIs(t, err, dispatch.ErrNoSuchTarget)

	assert.True(t, r.Unregister("view-1"))
	assert.False(t, r.Unregister("view-1"))
}

func TestRegistry_NotifyCleanup(t *testing.T) {
	ctx := context.Background()

	t.Run("delegate allows", func(t *testing.T) {
		r := NewRegistry()
		view := NewDummyView()
		d := &recordingDelegate{allow: true}
		require.NoError(t, r.Register(Entry{ID: "a", View: view, Delegate: d}))

		require.NoError(t, r.NotifyCleanup(ctx, "a", false))
		assert.Equal(t, []string{"requested:a", "begin:a", "completed:a"}, d.events)
		assert.True(t, view.CleanedUp())
		_, ok := r.Lookup("a")
		assert.False(t, ok)
	})

	t.Run("delegate vetoes", func(t *testing.T) {
		r := NewRegistry()
		view := NewDummyView()
		d := &recordingDelegate{}
		require.NoError(t, r.Register(Entry{ID: "a", View: view, Delegate: d}))

		require.NoError(t, r.NotifyCleanup(ctx, "a", false))
		assert.Equal(t, []string{"requested:a"}, d.events)
		assert.False(t, view.CleanedUp())
		_, ok := r.Lookup("a")
		assert.True(t, ok)
	})

	t.Run("force overrides veto", func(t *testing.T) {
		r := NewRegistry()
		d := &recordingDelegate{}
		require.NoError(t, r.Register(Entry{ID: "a", View: NewDummyView(), Delegate: d}))

		require.NoError(t, r.NotifyCleanup(ctx, "a", true))
		_, ok := r.Lookup("a")
		assert.False(t, ok)
	})

	t.Run("force not allowed", func(t *testing.T) {
		r := NewRegistry(WithForceCleanup(false))
		require.NoError(t, r.Register(Entry{ID: "a", View: NewDummyView(), Delegate: &recordingDelegate{}}))

		require.NoError(t, r.NotifyCleanup(ctx, "a", true))
		_, ok := r.Lookup("a")
		assert.True(t, ok)
	})

	t.Run("no delegate", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Entry{ID: "kept", View: NewDummyView()}))
		require.NoError(t, r.Register(Entry{ID: "gone", View: NewDummyView(), ProceedWithoutDelegate: true}))

		require.NoError(t, r.NotifyCleanup(ctx, "kept", false))
		require.NoError(t, r.NotifyCleanup(ctx, "gone", false))
		assert.Equal(t, []string{"kept"}, r.IDs())
	})

	t.Run("disabled", func(t *testing.T) {
		r := NewRegistry(WithCleanupDisabled(true))
		require.NoError(t, r.Register(Entry{ID: "a", View: NewDummyView(), ProceedWithoutDelegate: true}))
		require.NoError(t, r.NotifyCleanup(ctx, "a", true))
		assert.Equal(t, []string{"a"}, r.IDs())
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.NoError(t, NewRegistry().NotifyCleanup(ctx, "nope", true))
	})

	t.Run("failed cleanup keeps view", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Entry{ID: "a", View: failingView{NewDummyView()}, ProceedWithoutDelegate: true}))
		assert.ErrorContains(t, r.NotifyCleanup(ctx, "a", false), "still attached")
		assert.Equal(t, []string{"a"}, r.IDs())
	})
}

func TestRegistry_NotifyCleanupChildren(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	parent := &recordingDelegate{allow: true}
	child := NewDummyView()
	grandchild := NewDummyView()
	require.NoError(t, r.Register(Entry{
		ID:       "root",
		View:     NewDummyView(),
		Delegate: parent,
		Children: []string{"child", "child", "root", "broken", "missing"},
	}))
	require.NoError(t, r.Register(Entry{ID: "child", View: child, ProceedWithoutDelegate: true, Children: []string{"grandchild", "root"}}))
	require.NoError(t, r.Register(Entry{ID: "grandchild", View: grandchild, ProceedWithoutDelegate: true}))
	require.NoError(t, r.Register(Entry{ID: "broken", View: failingView{NewDummyView()}, ProceedWithoutDelegate: true}))
	require.NoError(t, r.Register(Entry{ID: "unrelated", View: NewDummyView()}))

	require.NoError(t, r.NotifyCleanup(ctx, "root", false))
	assert.True(t, child.CleanedUp())
	assert.True(t, grandchild.CleanedUp())
	assert.Equal(t, []string{"broken", "unrelated"}, r.IDs())
}

func TestRegistry_CleanupHandler(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"view-1", "42"} {
		require.NoError(t, r.Register(Entry{ID: id, View: NewDummyView(), ProceedWithoutDelegate: true}))
	}
	fire := r.CleanupHandler()

	fire(context.Background(), value.String("view-1"))
	fire(context.Background(), value.Int(42))
	fire(context.Background(), value.Number(1.5))
	fire(context.Background(), value.Null())
	assert.Empty(t, r.IDs())
}

func TestRouterOverRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Entry{ID: "view-42", View: NewDummyView()}))
	router := dispatch.NewRouter(dispatch.KindView, r)

	call := func(target, command string, args value.Value) (value.Value, error) {
		type result struct {
			v   value.Value
			err error
		}
		ch := make(chan result, 1)
		router.Dispatch(context.Background(), dispatch.Request{Target: target, Command: command, Args: args}, dispatch.Completion{
			OnSuccess: func(v value.Value) { ch <- result{v: v} },
			OnFailure: func(err error) { ch <- result{err: err} },
		})
		res := <-ch
		return res.v, res.err
	}

	v, err := call("view-42", "setColor", value.Map(value.NewObject().Set("color", value.String("red"))))
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	_, err = call("view-missing", "setColor", value.Map(value.NewObject().Set("color", value.String("red"))))
	assert.ErrorIs(t, err, dispatch.ErrNoSuchTarget)
	assert.EqualError(t, err, `no such view: "view-missing"`)
}
