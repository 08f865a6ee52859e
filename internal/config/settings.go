package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings is the typed, effective configuration. Values come from the
// environment, then the file, then the schema defaults.
type Settings struct {
	LogLevel          string `env:"HOSTBRIDGE_LOG_LEVEL"`
	LogFile           string `env:"HOSTBRIDGE_LOG_FILE"`
	LogMaxSizeMB      int
	LogMaxFiles       int
	MetricsListen     string `env:"HOSTBRIDGE_METRICS_LISTEN"`
	TelemetryEndpoint string `env:"HOSTBRIDGE_OTEL_ENDPOINT"`

	GlobalName        string
	ModuleName        string
	AllowForceCleanup bool
	CleanupDisabled   bool

	Wait      time.Duration
	Listen    string
	RateLimit int
	Burst     int
}

// Resolve computes the effective settings using the process environment.
func (c *Config) Resolve() (Settings, error) {
	return c.ResolveEnv(nil)
}

// ResolveEnv is Resolve with an explicit environment; nil means the process
// environment.
func (c *Config) ResolveEnv(environ map[string]string) (Settings, error) {
	schema := DefaultSchema()
	get := func(section, key string) string {
		var v string
		var ok bool
		if section == "" {
			v, ok = c.GetGlobalOption(key)
		} else {
			v, ok = c.Sections[section][key]
		}
		if !ok || validateType(schema.Lookup(section, key).Type, v) != nil {
			return schema.Default(section, key)
		}
		return v
	}
	atoi := func(section, key string) int {
		n, _ := strconv.Atoi(get(section, key))
		return n
	}
	boolean := func(section, key string) bool {
		b, _ := parseBool(get(section, key))
		return b
	}
	wait, _ := time.ParseDuration(get(SectionRun, "wait"))

	s := Settings{
		LogLevel:          get("", "log.level"),
		LogFile:           get("", "log.file"),
		LogMaxSizeMB:      atoi("", "log.max-size-mb"),
		LogMaxFiles:       atoi("", "log.max-files"),
		MetricsListen:     get("", "metrics.listen"),
		TelemetryEndpoint: get("", "telemetry.endpoint"),
		GlobalName:        get(SectionBridge, "global-name"),
		ModuleName:        get(SectionBridge, "module-name"),
		AllowForceCleanup: boolean(SectionBridge, "cleanup.allow-force"),
		CleanupDisabled:   boolean(SectionBridge, "cleanup.disabled"),
		Wait:              wait,
		Listen:            get(SectionServe, "listen"),
		RateLimit:         atoi(SectionServe, "rate-limit"),
		Burst:             atoi(SectionServe, "burst"),
	}
	if err := env.ParseWithOptions(&s, env.Options{Environment: environ}); err != nil {
		return Settings{}, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
