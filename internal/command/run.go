package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/joeycumines/hostbridge/internal/bridge"
	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/modules"
	"github.com/joeycumines/hostbridge/internal/remote"
	"github.com/joeycumines/hostbridge/internal/scripting"
	"github.com/joeycumines/hostbridge/internal/views"
)

// dialTimeout bounds the wait for a remote module to become healthy.
const dialTimeout = 10 * time.Second

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

// RunCommand runs a script with the host bridge installed.
type RunCommand struct {
	*BaseCommand
	config  *config.Config
	version string
	// environ replaces the process environment when non-nil.
	environ map[string]string

	common commonFlags
	wait   time.Duration
	eval   string
	views  stringList
}

// NewRunCommand creates a new run command.
func NewRunCommand(cfg *config.Config, version string) *RunCommand {
	return &RunCommand{
		BaseCommand: NewBaseCommand(
			"run",
			"Run a script with access to host views and modules",
			"run [options] <script.js | ->",
		),
		config:  cfg,
		version: version,
	}
}

// SetupFlags configures the flags for the run command.
func (c *RunCommand) SetupFlags(fs *flag.FlagSet) {
	c.common.setup(fs)
	fs.DurationVar(&c.wait, "wait", 0, "How long to wait for pending dispatches after the script (default from config)")
	fs.StringVar(&c.eval, "e", "", "Run this code instead of a script file")
	fs.Var(&c.views, "view", "Create a view with this id (repeatable)")
}

// Execute runs the script.
func (c *RunCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	name, code, err := c.source(args)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return err
	}

	cfg, s, err := c.common.settings(c.config, c.environ)
	if err != nil {
		return err
	}
	if c.wait > 0 {
		s.Wait = c.wait
	}

	st, err := newStack(ctx, s, stderr, c.version)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()
	logger := st.logger

	rt, err := scripting.NewRuntime(ctx, scripting.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	viewReg := views.NewRegistry(
		views.WithLogger(logger),
		views.WithForceCleanup(s.AllowForceCleanup),
		views.WithCleanupDisabled(s.CleanupDisabled),
	)
	if err := c.registerViews(viewReg, cfg.Views); err != nil {
		return err
	}

	moduleReg, closeModules, err := moduleRegistry(ctx, logger, cfg.Remotes)
	if err != nil {
		return err
	}
	defer closeModules()

	routerOpts := []dispatch.RouterOption{dispatch.WithLogger(logger), dispatch.WithObserver(st.metrics)}
	adapter, err := bridge.New(bridge.Options{
		Loop:          rt,
		Views:         dispatch.NewRouter(dispatch.KindView, viewReg, routerOpts...),
		Modules:       dispatch.NewRouter(dispatch.KindModule, moduleReg, routerOpts...),
		FireAndForget: viewReg.CleanupHandler(),
		Context:       ctx,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	adapter.Register(rt.Registry(), s.ModuleName)
	if err := rt.RunOnLoopSync(func(vm *goja.Runtime) error {
		return adapter.Install(vm, s.GlobalName)
	}); err != nil {
		return fmt.Errorf("install host object: %w", err)
	}

	if err := rt.RunScript(name, code); err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) {
			_, _ = fmt.Fprintln(stderr, ex.String())
		}
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.Wait)
	defer cancel()
	if err := adapter.Wait(waitCtx); err != nil {
		return fmt.Errorf("%d dispatch(es) still pending: %w", adapter.Pending(), err)
	}
	// Promise reactions queued by the last settlement run before this.
	return rt.RunOnLoopSync(func(*goja.Runtime) error { return nil })
}

// moduleRegistry registers the built-in modules, then each remote module,
// which replaces a built-in of the same name. The returned func closes the
// remote connections.
func moduleRegistry(ctx context.Context, logger *slog.Logger, remotes []config.Remote) (*dispatch.Registry, func(), error) {
	var conns []io.Closer
	closeAll := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	reg := dispatch.NewRegistry()
	if err := modules.Register(reg, modules.NewLogger(logger), modules.NewTimer()); err != nil {
		return nil, nil, err
	}
	for _, r := range remotes {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := remote.Dial(dialCtx, r.Address)
		cancel()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("remote module %s at %s: %w", r.Module, r.Address, err)
		}
		conns = append(conns, conn)
		if err := reg.Register(r.Module, remote.NewModule(conn, r.Module, logger)); err != nil {
			closeAll()
			return nil, nil, err
		}
		logger.Debug("registered remote module", slog.String("module", r.Module), slog.String("address", r.Address))
	}
	return reg, closeAll, nil
}

func (c *RunCommand) source(args []string) (name, code string, err error) {
	switch {
	case c.eval != "" && len(args) == 0:
		return "<eval>", c.eval, nil
	case c.eval != "" || len(args) != 1:
		return "", "", errors.New("run requires exactly one script path, or -e")
	case args[0] == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "<stdin>", string(data), nil
	default:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("read script: %w", err)
		}
		return args[0], string(data), nil
	}
}

// registerViews creates a DummyView for each configured view and each -view
// flag. Views from the config keep their children.
func (c *RunCommand) registerViews(reg *views.Registry, configured []config.View) error {
	for _, v := range configured {
		if err := reg.Register(views.Entry{
			ID:                     v.ID,
			View:                   views.NewDummyView(),
			Children:               v.Children,
			ProceedWithoutDelegate: true,
		}); err != nil {
			return err
		}
	}
	for _, id := range c.views {
		if _, exists := reg.Lookup(id); exists {
			continue
		}
		if err := reg.Register(views.Entry{
			ID:                     id,
			View:                   views.NewDummyView(),
			ProceedWithoutDelegate: true,
		}); err != nil {
			return err
		}
	}
	return nil
}
