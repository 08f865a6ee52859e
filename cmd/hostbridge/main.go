package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/hostbridge/internal/command"
	"github.com/joeycumines/hostbridge/internal/config"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadFromPath(configPath)
	if err != nil {
		// Commands still work without a usable config file; config errors
		// resurface when a command loads it explicitly.
		_, _ = fmt.Fprintf(stderr, "Warning: %v\n", err)
		cfg = config.NewConfig()
	}

	registry := command.NewRegistry()
	registry.Register(command.NewHelpCommand(registry))
	registry.Register(command.NewVersionCommand(version))
	registry.Register(command.NewConfigCommand(cfg, configPath))
	registry.Register(command.NewRunCommand(cfg, version))
	registry.Register(command.NewServeCommand(cfg, version))
	registry.Register(command.NewCallCommand(cfg, version))

	return registry.Run(ctx, argv, stdout, stderr)
}
