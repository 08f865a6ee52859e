package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// OptionType represents the expected type of a configuration option value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// ConfigOption declares a single configuration option.
type ConfigOption struct {
	// Key is the option name as it appears in the config file (kebab-case).
	Key         string
	Type        OptionType
	Default     string
	Description string
	// Section is "" for global options.
	Section string
	// EnvVar is the environment variable that overrides this option, or "".
	EnvVar string
}

// ConfigSchema declares the expected configuration options.
type ConfigSchema struct {
	options   []*ConfigOption
	bySection map[string]map[string]*ConfigOption
}

// NewSchema creates a new empty ConfigSchema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{bySection: make(map[string]map[string]*ConfigOption)}
}

// Register adds opt to the schema; the last registration of a key wins.
func (s *ConfigSchema) Register(opt ConfigOption) {
	ref := new(ConfigOption)
	*ref = opt
	s.options = append(s.options, ref)
	if s.bySection[opt.Section] == nil {
		s.bySection[opt.Section] = make(map[string]*ConfigOption)
	}
	s.bySection[opt.Section][opt.Key] = ref
}

// RegisterAll adds multiple ConfigOptions to the schema.
func (s *ConfigSchema) RegisterAll(opts []ConfigOption) {
	for _, opt := range opts {
		s.Register(opt)
	}
}

// Lookup returns the option for key in section ("" for global), or nil.
func (s *ConfigSchema) Lookup(section, key string) *ConfigOption {
	return s.bySection[section][key]
}

// SectionOptions returns the options of section in registration order.
func (s *ConfigSchema) SectionOptions(section string) []ConfigOption {
	var out []ConfigOption
	for _, o := range s.options {
		if o.Section == section {
			out = append(out, *o)
		}
	}
	return out
}

// Sections returns the sorted names of the non-global sections.
func (s *ConfigSchema) Sections() []string {
	out := make([]string, 0, len(s.bySection))
	for sec := range s.bySection {
		if sec != "" {
			out = append(out, sec)
		}
	}
	sort.Strings(out)
	return out
}

// Default returns the declared default of key in section.
func (s *ConfigSchema) Default(section, key string) string {
	if opt := s.Lookup(section, key); opt != nil {
		return opt.Default
	}
	return ""
}

// ValidateConfig checks c against s, returning sorted human-readable issues:
// unknown options, unknown sections and values of the wrong type.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string
	for key, value := range c.Global {
		opt := s.Lookup("", key)
		if opt == nil {
			issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			continue
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("global option %q: %v", key, err))
		}
	}
	for section, opts := range c.Sections {
		if _, known := s.bySection[section]; !known {
			issues = append(issues, fmt.Sprintf("unknown section: [%s]", section))
			continue
		}
		for key, value := range opts {
			opt := s.Lookup(section, key)
			if opt == nil {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
				continue
			}
			if err := validateType(opt.Type, value); err != nil {
				issues = append(issues, fmt.Sprintf("option %q in [%s]: %v", key, section, err))
			}
		}
	}
	sort.Strings(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	switch t {
	case TypeString, "":
		return nil
	case TypeBool:
		if _, err := parseBool(value); err != nil {
			return fmt.Errorf("expected bool, got %q", value)
		}
	case TypeInt:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("expected int, got %q", value)
		}
	case TypeDuration:
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("expected duration, got %q", value)
		}
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	return nil
}

// parseBool accepts true, false, 1, 0, yes, no, on and off (case-insensitive).
func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", s)
	}
}

// FormatHelp returns a reference of all options, grouped by section.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	if globals := s.SectionOptions(""); len(globals) > 0 {
		b.WriteString("Global Options:\n")
		for _, o := range globals {
			writeOptionHelp(&b, o)
		}
	}
	for _, sec := range s.Sections() {
		fmt.Fprintf(&b, "\n[%s] Options:\n", sec)
		for _, o := range s.SectionOptions(sec) {
			writeOptionHelp(&b, o)
		}
	}
	b.WriteString("\n[" + SectionRemote + "] Entries:\n  <module> <address>\n")
	b.WriteString("\n[" + SectionViews + "] Entries:\n  <view-id> [child-id ...]\n")
	return b.String()
}

func writeOptionHelp(b *strings.Builder, o ConfigOption) {
	fmt.Fprintf(b, "  %-28s %s", o.Key, o.Description)
	parts := make([]string, 0, 3)
	if o.Type != "" && o.Type != TypeString {
		parts = append(parts, "type: "+string(o.Type))
	}
	if o.Default != "" {
		parts = append(parts, "default: "+o.Default)
	}
	if o.EnvVar != "" {
		parts = append(parts, "env: "+o.EnvVar)
	}
	if len(parts) > 0 {
		fmt.Fprintf(b, " (%s)", strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

// Sections and keys of the default schema.
const (
	SectionBridge = "bridge"
	SectionRun    = "run"
	SectionServe  = "serve"
)

// DefaultSchema returns the schema of all known options.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.RegisterAll([]ConfigOption{
		{Key: "log.level", Type: TypeString, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "HOSTBRIDGE_LOG_LEVEL"},
		{Key: "log.file", Type: TypeString, Description: "Log file path (JSON output, rotated)", EnvVar: "HOSTBRIDGE_LOG_FILE"},
		{Key: "log.max-size-mb", Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		{Key: "log.max-files", Type: TypeInt, Default: "5", Description: "Max number of rotated log backup files"},
		{Key: "metrics.listen", Type: TypeString, Description: "Address for the Prometheus /metrics endpoint", EnvVar: "HOSTBRIDGE_METRICS_LISTEN"},
		{Key: "telemetry.endpoint", Type: TypeString, Description: "OTLP/HTTP trace endpoint URL", EnvVar: "HOSTBRIDGE_OTEL_ENDPOINT"},

		{Key: "global-name", Section: SectionBridge, Type: TypeString, Default: "HostBridge", Description: "Global variable holding the host object"},
		{Key: "module-name", Section: SectionBridge, Type: TypeString, Default: "hostbridge", Description: "CommonJS module name for require()"},
		{Key: "cleanup.allow-force", Section: SectionBridge, Type: TypeBool, Default: "true", Description: "Let forced view cleanups override a veto"},
		{Key: "cleanup.disabled", Section: SectionBridge, Type: TypeBool, Default: "false", Description: "Ignore view cleanup requests"},

		{Key: "wait", Section: SectionRun, Type: TypeDuration, Default: "30s", Description: "How long to wait for pending dispatches after the script"},
		{Key: "listen", Section: SectionServe, Type: TypeString, Default: "127.0.0.1:7443", Description: "Address of the command service"},
		{Key: "rate-limit", Section: SectionServe, Type: TypeInt, Default: "0", Description: "Calls per second allowed per module (0 disables)"},
		{Key: "burst", Section: SectionServe, Type: TypeInt, Default: "10", Description: "Burst size of the per-module rate limit"},
	})
	return s
}
