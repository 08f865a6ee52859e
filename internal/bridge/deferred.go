package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/hostbridge/internal/dispatch"
)

// State is the lifecycle of a Deferred.
type State int32

const (
	StateCreated State = iota
	StatePending
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Deferred tracks the settlement of one promise returned to a script.
// Resolved and Rejected are terminal.
type Deferred struct {
	req   dispatch.Request
	state atomic.Int32
}

func newDeferred(req dispatch.Request) *Deferred {
	return &Deferred{req: req}
}

// State returns the current state.
func (d *Deferred) State() State { return State(d.state.Load()) }

// Request returns the dispatch the deferred belongs to.
func (d *Deferred) Request() dispatch.Request { return d.req }

func (d *Deferred) start() bool {
	return d.state.CompareAndSwap(int32(StateCreated), int32(StatePending))
}

// settle moves a pending deferred to a terminal state, reporting false when
// it was not pending.
func (d *Deferred) settle(to State) bool {
	return d.state.CompareAndSwap(int32(StatePending), int32(to))
}

// inflight counts pending deferreds and lets callers wait for zero. After
// abandon it stays at zero.
type inflight struct {
	mu        sync.Mutex
	n         int
	idle      chan struct{}
	abandoned bool
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abandoned {
		return
	}
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return
	}
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

// abandon drops every outstanding deferred and returns how many there were.
func (f *inflight) abandon() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.n
	f.abandoned = true
	if f.n > 0 {
		f.n = 0
		close(f.idle)
	}
	return n
}

func (f *inflight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func (f *inflight) wait(ctx context.Context) error {
	f.mu.Lock()
	if f.n == 0 {
		f.mu.Unlock()
		return nil
	}
	idle := f.idle
	f.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
