package command

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/joeycumines/hostbridge/internal/config"
)

// HelpCommand displays help information for commands.
type HelpCommand struct {
	*BaseCommand
	registry *Registry
}

// NewHelpCommand creates a new help command.
func NewHelpCommand(registry *Registry) *HelpCommand {
	return &HelpCommand{
		BaseCommand: NewBaseCommand(
			"help",
			"Display help information for commands",
			"help [command]",
		),
		registry: registry,
	}
}

// Execute displays help information.
func (c *HelpCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, "hostbridge - run scripts against host views and modules")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Usage: hostbridge <command> [options] [args...]")
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Available commands:")

		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, name := range c.registry.List() {
			if cmd, err := c.registry.Get(name); err == nil {
				_, _ = fmt.Fprintf(w, "  %s\t%s\n", name, cmd.Description())
			}
		}
		_ = w.Flush()

		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'hostbridge help <command>' for more information about a specific command (includes flags).")
		return nil
	}

	cmd, err := c.registry.Get(args[0])
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		return err
	}

	_, _ = fmt.Fprintf(stdout, "Command: %s\n", cmd.Name())
	_, _ = fmt.Fprintf(stdout, "Description: %s\n", cmd.Description())
	_, _ = fmt.Fprintf(stdout, "Usage: %s\n", cmd.Usage())

	// Flags are printed from a scratch FlagSet so the command's own state is
	// untouched.
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	buf := &bytes.Buffer{}
	fs.SetOutput(buf)
	cmd.SetupFlags(fs)
	fs.PrintDefaults()
	if buf.Len() > 0 {
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Flags:")
		_, _ = fmt.Fprint(stdout, buf.String())
	}
	return nil
}

// VersionCommand displays version information.
type VersionCommand struct {
	*BaseCommand
	version string
}

// NewVersionCommand creates a new version command.
func NewVersionCommand(version string) *VersionCommand {
	return &VersionCommand{
		BaseCommand: NewBaseCommand(
			"version",
			"Display version information",
			"version",
		),
		version: version,
	}
}

// Execute displays version information.
func (c *VersionCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}
	_, _ = fmt.Fprintf(stdout, "hostbridge version %s\n", c.version)
	return nil
}

// ConfigCommand inspects and edits the configuration file.
type ConfigCommand struct {
	*BaseCommand
	config     *config.Config
	configPath string
	section    string
	showAll    bool
}

// NewConfigCommand creates a new config command. Values are persisted to
// configPath; when it is empty, the default location is used.
func NewConfigCommand(cfg *config.Config, configPath string) *ConfigCommand {
	return &ConfigCommand{
		BaseCommand: NewBaseCommand(
			"config",
			"Manage configuration settings",
			"config [options] [validate|schema|key [value]]",
		),
		config:     cfg,
		configPath: configPath,
	}
}

// SetupFlags configures the flags for the config command.
func (c *ConfigCommand) SetupFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.section, "section", "", "Section of the key (empty for global options)")
	fs.BoolVar(&c.showAll, "all", false, "Show all configuration")
}

// Execute manages configuration.
func (c *ConfigCommand) Execute(_ context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		if c.showAll {
			c.printAll(stdout)
			return nil
		}
		_, _ = fmt.Fprintln(stdout, "Configuration management:")
		_, _ = fmt.Fprintln(stdout, "  config [-section s] <key>          - Get configuration value")
		_, _ = fmt.Fprintln(stdout, "  config [-section s] <key> <value>  - Set configuration value")
		_, _ = fmt.Fprintln(stdout, "  config -all                        - Show all configuration")
		_, _ = fmt.Fprintln(stdout, "  config validate                    - Validate configuration")
		_, _ = fmt.Fprintln(stdout, "  config schema                      - Show configuration schema")
		return nil
	}

	switch args[0] {
	case "validate":
		return c.executeValidate(stdout)
	case "schema":
		_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
		return nil
	}

	schema := config.DefaultSchema()
	key := args[0]
	label := key
	if c.section != "" {
		label = "[" + c.section + "] " + key
	}

	switch len(args) {
	case 1:
		var value string
		var exists bool
		if c.section == "" {
			value, exists = c.config.GetGlobalOption(key)
		} else {
			value, exists = c.config.Sections[c.section][key]
		}
		if !exists {
			if opt := schema.Lookup(c.section, key); opt != nil {
				value, exists = opt.Default, true
			}
		}
		if exists {
			_, _ = fmt.Fprintf(stdout, "%s: %s\n", label, value)
		} else {
			_, _ = fmt.Fprintf(stdout, "Configuration key '%s' not found\n", label)
		}
		return nil

	case 2:
		value := args[1]
		if schema.Lookup(c.section, key) == nil {
			_, _ = fmt.Fprintf(stderr, "Warning: %s is not a known option\n", label)
		}
		path := c.configPath
		if path == "" {
			var err error
			if path, err = config.GetConfigPath(); err != nil {
				return fmt.Errorf("failed to resolve config path: %w", err)
			}
		}
		if err := config.SetOption(path, c.section, key, value); err != nil {
			return fmt.Errorf("failed to persist config: %w", err)
		}
		if c.section == "" {
			c.config.SetGlobalOption(key, value)
		} else {
			c.config.SetSectionOption(c.section, key, value)
		}
		_, _ = fmt.Fprintf(stdout, "Set configuration: %s = %s\n", label, value)
		return nil
	}

	_, _ = fmt.Fprintln(stderr, "Invalid number of arguments")
	return fmt.Errorf("invalid arguments")
}

func (c *ConfigCommand) printAll(stdout io.Writer) {
	_, _ = fmt.Fprintln(stdout, "Global configuration:")
	printOptions(stdout, c.config.Global)

	sections := make([]string, 0, len(c.config.Sections))
	for name := range c.config.Sections {
		sections = append(sections, name)
	}
	sort.Strings(sections)
	for _, name := range sections {
		_, _ = fmt.Fprintf(stdout, "\n[%s]\n", name)
		printOptions(stdout, c.config.Sections[name])
	}

	if len(c.config.Remotes) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n[%s]\n", config.SectionRemote)
		for _, r := range c.config.Remotes {
			_, _ = fmt.Fprintf(stdout, "  %s: %s\n", r.Module, r.Address)
		}
	}
	if len(c.config.Views) > 0 {
		_, _ = fmt.Fprintf(stdout, "\n[%s]\n", config.SectionViews)
		for _, v := range c.config.Views {
			_, _ = fmt.Fprintf(stdout, "  %s: %s\n", v.ID, strings.Join(v.Children, " "))
		}
	}
}

func printOptions(w io.Writer, opts map[string]string) {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", k, opts[k])
	}
}

// executeValidate validates the current config against the schema.
func (c *ConfigCommand) executeValidate(stdout io.Writer) error {
	issues := config.ValidateConfig(c.config, config.DefaultSchema())
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(stdout, "Configuration is valid.")
		return nil
	}
	_, _ = fmt.Fprintf(stdout, "Configuration has %d issue(s):\n", len(issues))
	for _, issue := range issues {
		_, _ = fmt.Fprintf(stdout, "  - %s\n", issue)
	}
	return nil
}
