// Package views holds the live view instances that dispatchToView
// addresses, and tears them down on request.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/value"
)

// Delegate takes part in the cleanup of a view.
type Delegate interface {
	// CleanupRequested may veto a non-forced cleanup by returning false.
	CleanupRequested(id string) bool
	CleanupWillBegin(id string)
	CleanupCompleted(id string)
}

// Cleaner is implemented by views that release resources on cleanup. A
// failed Cleanup leaves the view registered.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Entry is a registered view.
type Entry struct {
	ID   string
	View dispatch.Target
	// Delegate is optional.
	Delegate Delegate
	// Children are ids of views cleaned up after this one.
	Children []string
	// ProceedWithoutDelegate allows cleanup of an entry with no Delegate.
	ProceedWithoutDelegate bool
}

// Registry maps view ids to views. It implements dispatch.Resolver.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry

	allowForce bool
	disabled   bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger for cleanup events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithForceCleanup controls whether forced cleanups may override a
// delegate veto. Enabled by default.
func WithForceCleanup(allow bool) Option {
	return func(r *Registry) { r.allowForce = allow }
}

// WithCleanupDisabled turns NotifyCleanup into a no-op.
func WithCleanupDisabled(disabled bool) Option {
	return func(r *Registry) { r.disabled = disabled }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:    make(map[string]Entry),
		allowForce: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Register adds or replaces the entry for e.ID.
func (r *Registry) Register(e Entry) error {
	if e.ID == "" {
		return errors.New("view id must not be empty")
	}
	if e.View == nil {
		return fmt.Errorf("view %q: nil view", e.ID)
	}
	e.Children = append([]string(nil), e.Children...)
	r.mu.Lock()
	r.entries[e.ID] = e
	r.mu.Unlock()
	r.logger.Debug("view registered", slog.String("id", e.ID), slog.Int("children", len(e.Children)))
	return nil
}

// Unregister removes id without cleaning it up.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

// Lookup returns the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Resolve implements dispatch.Resolver.
func (r *Registry) Resolve(_ context.Context, id string) (dispatch.Target, error) {
	e, ok := r.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", dispatch.ErrNoSuchTarget, id)
	}
	return e.View, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// NotifyCleanup cleans up the view id and then its children, removing them
// from the registry. Unknown ids are ignored. A delegate veto stops the
// cleanup unless force is set and the registry allows forced cleanups.
// Children that fail to clean up are registered again.
func (r *Registry) NotifyCleanup(ctx context.Context, id string, force bool) error {
	if r.disabled {
		return nil
	}
	entry, ok := r.Lookup(id)
	if !ok {
		return nil
	}
	force = force && r.allowForce

	proceed := entry.ProceedWithoutDelegate
	if entry.Delegate != nil {
		proceed = entry.Delegate.CleanupRequested(id)
	}
	if force {
		proceed = true
	}
	if !proceed {
		r.logger.Debug("view cleanup declined", slog.String("id", id))
		return nil
	}

	children := r.children(entry)

	if entry.Delegate != nil {
		entry.Delegate.CleanupWillBegin(id)
	}
	if c, ok := entry.View.(Cleaner); ok {
		if err := c.Cleanup(ctx); err != nil {
			return fmt.Errorf("cleanup of view %q: %w", id, err)
		}
	}
	if entry.Delegate != nil {
		entry.Delegate.CleanupCompleted(id)
	}

	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()

	for _, child := range children {
		if err := r.NotifyCleanup(ctx, child.ID, force); err != nil {
			r.logger.Warn("child view cleanup failed; keeping it registered",
				slog.String("id", child.ID),
				slog.String("parent", id),
				slog.Any("error", err),
			)
			r.mu.Lock()
			r.entries[child.ID] = child
			r.mu.Unlock()
		}
	}

	r.logger.Debug("view cleaned up", slog.String("id", id), slog.Int("children", len(children)), slog.Bool("forced", force))
	return nil
}

// children returns the distinct registered children of e, excluding e.
func (r *Registry) children(e Entry) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(e.Children))
	var out []Entry
	for _, id := range e.Children {
		if id == e.ID || seen[id] {
			continue
		}
		seen[id] = true
		if child, ok := r.entries[id]; ok {
			out = append(out, child)
		}
	}
	return out
}

// CleanupHandler returns a fireAndForget side effect that cleans up the view
// named by its key. String keys are used as-is; integral numbers are
// formatted in base 10. Other keys are logged and ignored.
func (r *Registry) CleanupHandler() func(ctx context.Context, key value.Value) {
	return func(ctx context.Context, key value.Value) {
		id, ok := viewID(key)
		if !ok {
			r.logger.Warn("ignoring cleanup request with invalid view id", slog.String("key", key.String()))
			return
		}
		if err := r.NotifyCleanup(ctx, id, false); err != nil {
			r.logger.Error("view cleanup failed", slog.String("id", id), slog.Any("error", err))
		}
	}
}

func viewID(key value.Value) (string, bool) {
	if s, ok := key.AsString(); ok {
		return s, s != ""
	}
	if n, ok := key.AsInt(); ok && math.Abs(float64(n)) < 1<<53 {
		return strconv.FormatInt(n, 10), true
	}
	return "", false
}
