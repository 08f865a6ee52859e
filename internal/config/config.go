package config

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Free-form sections, whose keys are names rather than options.
const (
	// SectionRemote maps module names to command service addresses:
	//
	//	[remote]
	//	Storage 127.0.0.1:7443
	SectionRemote = "remote"
	// SectionViews declares views to create at startup, with the ids of
	// their child views:
	//
	//	[views]
	//	view-1 view-2 view-3
	//	view-2
	SectionViews = "views"
)

// Config represents the parsed configuration file.
type Config struct {
	// Global options, which appear before any section header.
	Global map[string]string
	// Sections holds options of schema-declared sections such as [bridge].
	Sections map[string]map[string]string
	// Remotes are the [remote] entries in file order.
	Remotes []Remote
	// Views are the [views] entries in file order.
	Views []View
	// Warnings contains any warnings generated during config loading.
	Warnings []string
}

// Remote is a module served by another process.
type Remote struct {
	Module  string
	Address string
}

// View is a view created at startup.
type View struct {
	ID       string
	Children []string
}

// NewConfig creates a new empty configuration.
func NewConfig() *Config {
	return &Config{
		Global:   make(map[string]string),
		Sections: make(map[string]map[string]string),
	}
}

// LoadFromPath loads configuration from the specified file path. A missing
// file yields an empty configuration.
//
// Symlinks are rejected.
func LoadFromPath(path string) (*Config, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("symlink not allowed in config path: %s", path)
	}

	file, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader parses the dnsmasq-style format: one "name value" pair per
// line, "#" comments, and "[section]" headers. Options that the schema does
// not know are kept and reported as warnings.
func LoadFromReader(r io.Reader) (*Config, error) {
	config := NewConfig()
	scanner := bufio.NewScanner(r)

	var section string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.TrimSpace(strings.Trim(line, "[]"))
			if section != SectionRemote && section != SectionViews && config.Sections[section] == nil {
				config.Sections[section] = make(map[string]string)
			}
			continue
		}

		name, value, _ := strings.Cut(line, " ")
		value = strings.TrimSpace(value)

		switch section {
		case "":
			config.Global[name] = value
		case SectionRemote:
			if value == "" {
				return nil, fmt.Errorf("line %d: remote module %q has no address", lineNo, name)
			}
			config.Remotes = append(config.Remotes, Remote{Module: name, Address: value})
		case SectionViews:
			config.Views = append(config.Views, View{ID: name, Children: strings.Fields(value)})
		default:
			config.Sections[section][name] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	for _, issue := range ValidateConfig(config, DefaultSchema()) {
		config.addWarning("%s", issue)
	}
	return config, nil
}

func (c *Config) addWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.Warnings = append(c.Warnings, msg)
	slog.Warn("[Config] " + msg)
}

// GetGlobalOption returns a global configuration option.
func (c *Config) GetGlobalOption(name string) (string, bool) {
	value, exists := c.Global[name]
	return value, exists
}

// GetSectionOption returns an option from section, falling back to the
// global option of the same name.
func (c *Config) GetSectionOption(section, name string) (string, bool) {
	if opts, exists := c.Sections[section]; exists {
		if value, exists := opts[name]; exists {
			return value, true
		}
	}
	return c.GetGlobalOption(name)
}

// SetGlobalOption sets a global configuration option.
func (c *Config) SetGlobalOption(name, value string) {
	c.Global[name] = value
}

// SetSectionOption sets a section option.
func (c *Config) SetSectionOption(section, name, value string) {
	if c.Sections[section] == nil {
		c.Sections[section] = make(map[string]string)
	}
	c.Sections[section][name] = value
}
