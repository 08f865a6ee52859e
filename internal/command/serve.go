package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/dispatch"
	"github.com/joeycumines/hostbridge/internal/modules"
	"github.com/joeycumines/hostbridge/internal/remote"
)

// ServeCommand exposes the built-in modules over gRPC.
type ServeCommand struct {
	*BaseCommand
	config  *config.Config
	version string
	environ map[string]string
	// ready, if set, receives the bound address once the server listens.
	ready func(addr string)

	common    commonFlags
	listen    string
	rateLimit int
	burst     int
}

// NewServeCommand creates a new serve command.
func NewServeCommand(cfg *config.Config, version string) *ServeCommand {
	return &ServeCommand{
		BaseCommand: NewBaseCommand(
			"serve",
			"Serve the built-in modules to other processes over gRPC",
			"serve [options]",
		),
		config:  cfg,
		version: version,
	}
}

// SetupFlags configures the flags for the serve command.
func (c *ServeCommand) SetupFlags(fs *flag.FlagSet) {
	c.common.setup(fs)
	fs.StringVar(&c.listen, "listen", "", "Address to listen on (default from config)")
	fs.IntVar(&c.rateLimit, "rate-limit", -1, "Calls per second allowed per module, 0 for no limit (default from config)")
	fs.IntVar(&c.burst, "burst", 0, "Burst size of the rate limit (default from config)")
}

// Execute serves until ctx is cancelled.
func (c *ServeCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}

	_, s, err := c.common.settings(c.config, c.environ)
	if err != nil {
		return err
	}
	if c.listen != "" {
		s.Listen = c.listen
	}
	if c.rateLimit >= 0 {
		s.RateLimit = c.rateLimit
	}
	if c.burst > 0 {
		s.Burst = c.burst
	}

	st, err := newStack(ctx, s, stderr, c.version)
	if err != nil {
		return err
	}
	defer func() { _ = st.close(context.Background()) }()
	logger := st.logger

	moduleReg := dispatch.NewRegistry()
	if err := modules.Register(moduleReg, modules.NewLogger(logger), modules.NewTimer()); err != nil {
		return err
	}
	router := dispatch.NewRouter(dispatch.KindModule, remote.RateLimit(moduleReg, float64(s.RateLimit), s.Burst),
		dispatch.WithLogger(logger),
		dispatch.WithObserver(st.metrics),
	)
	srv := remote.NewGRPCServer(remote.NewServer(router, logger))

	ln, err := net.Listen("tcp", s.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	addr := ln.Addr().String()
	logger.Info("serving modules", slog.String("addr", addr), slog.Any("modules", moduleReg.Names()))
	_, _ = fmt.Fprintf(stdout, "Serving modules on %s\n", addr)
	if c.ready != nil {
		c.ready(addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		srv.GracefulStop()
		<-errCh
		return nil
	}
}
