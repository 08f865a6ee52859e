package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joeycumines/hostbridge/internal/config"
	"github.com/joeycumines/hostbridge/internal/logging"
	"github.com/joeycumines/hostbridge/internal/metrics"
	"github.com/joeycumines/hostbridge/internal/telemetry"
)

const serviceName = "hostbridge"

// commonFlags are the overrides shared by commands that run the bridge.
// Empty values leave the resolved settings alone.
type commonFlags struct {
	configPath    string
	logLevel      string
	logFile       string
	metricsListen string
}

func (f *commonFlags) setup(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to the config file (default $HOSTBRIDGE_CONFIG or ~/.hostbridge/config)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&f.logFile, "log-file", "", "Write JSON logs to this file")
	fs.StringVar(&f.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address")
}

// settings loads the config file (the -config flag replaces the one loaded
// at startup) and applies the flag overrides.
func (f *commonFlags) settings(cfg *config.Config, environ map[string]string) (*config.Config, config.Settings, error) {
	if f.configPath != "" {
		loaded, err := config.LoadFromPath(f.configPath)
		if err != nil {
			return nil, config.Settings{}, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	s, err := cfg.ResolveEnv(environ)
	if err != nil {
		return nil, config.Settings{}, err
	}
	if f.logLevel != "" {
		s.LogLevel = f.logLevel
	}
	if f.logFile != "" {
		s.LogFile = f.logFile
	}
	if f.metricsListen != "" {
		s.MetricsListen = f.metricsListen
	}
	return cfg, s, nil
}

// stack holds the process-wide services of a bridge command.
type stack struct {
	logger  *slog.Logger
	metrics *metrics.Collector
	// metricsAddr is the bound metrics address, or "".
	metricsAddr string

	closers []func(context.Context) error
}

func newStack(ctx context.Context, s config.Settings, stderr io.Writer, version string) (_ *stack, err error) {
	st := &stack{}
	defer func() {
		if err != nil {
			_ = st.close(context.Background())
		}
	}()

	logger, logCloser, err := logging.New(logging.Config{
		Level:     s.LogLevel,
		File:      s.LogFile,
		MaxSizeMB: s.LogMaxSizeMB,
		MaxFiles:  s.LogMaxFiles,
	}, stderr)
	if err != nil {
		return nil, err
	}
	st.logger = logger
	st.closers = append(st.closers, func(context.Context) error { return logCloser.Close() })

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       s.TelemetryEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	st.closers = append(st.closers, shutdown)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if st.metrics, err = metrics.NewCollector(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if s.MetricsListen != "" {
		ln, err := net.Listen("tcp", s.MetricsListen)
		if err != nil {
			return nil, fmt.Errorf("metrics listen: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
		st.metricsAddr = ln.Addr().String()
		st.closers = append(st.closers, srv.Shutdown)
		logger.Info("serving metrics", slog.String("addr", st.metricsAddr))
	}

	return st, nil
}

// close releases resources in reverse order of acquisition.
func (st *stack) close(ctx context.Context) error {
	var errs []error
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	st.closers = nil
	return errors.Join(errs...)
}
