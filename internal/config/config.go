// Package config loads Titan's configuration surface: a YAML file
// optionally overridden by CLI flags, adapted from the teacher's flag-based
// main.go into a loadable Config struct plus a thin yaml.v3 layer (spec.md §6,
// "CLI/config surface used by core").
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hackstrix/titan/internal/logging"
)

// MetricsConfig is the admin/metrics surface.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    uint16 `yaml:"port"`
	Path    string `yaml:"path"`
}

// ServerConfig is the worker/listener surface.
type ServerConfig struct {
	WorkerThreads int    `yaml:"worker_threads"`
	ListenAddress string `yaml:"listen_address"`
	ListenPort    uint16 `yaml:"listen_port"`
	ReusePort     bool   `yaml:"reuse_port"`
}

// ShutdownConfig controls the graceful-drain deadline.
type ShutdownConfig struct {
	GracefulTimeoutMS int `yaml:"graceful_timeout_ms"`
}

// LoggingConfig controls the ambient logging stack.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is Titan's full configuration surface.
type Config struct {
	Metrics  MetricsConfig  `yaml:"metrics"`
	Server   ServerConfig   `yaml:"server"`
	Shutdown ShutdownConfig `yaml:"shutdown"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// Default returns a Config with every field set to spec.md §6's documented
// default.
func Default() Config {
	return Config{
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Server: ServerConfig{
			WorkerThreads: 0,
			ListenAddress: "0.0.0.0",
			ListenPort:    8080,
			ReusePort:     true,
		},
		Shutdown: ShutdownConfig{
			GracefulTimeoutMS: 30000,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// LoadFile reads and parses a YAML config file into cfg, starting from
// Default() and overwriting any field the file sets.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ParseFlags builds a Config from CLI flags, starting from base and letting
// any flag the caller actually passed override it — mirroring the teacher's
// main.go flag.Int/flag.String wiring, generalized to Titan's surface.
func ParseFlags(fs *flag.FlagSet, args []string, base Config) (Config, error) {
	cfg := base

	configPath := fs.String("config", "", "path to YAML config file")
	metricsEnabled := fs.Bool("metrics-enabled", cfg.Metrics.Enabled, "enable the admin/metrics listener")
	metricsPort := fs.Uint("metrics-port", uint(cfg.Metrics.Port), "admin/metrics listener port")
	metricsPath := fs.String("metrics-path", cfg.Metrics.Path, "additional path alias for /metrics")
	workerThreads := fs.Int("worker-threads", cfg.Server.WorkerThreads, "number of worker threads (0 = auto)")
	listenAddress := fs.String("listen-address", cfg.Server.ListenAddress, "client-facing listen address")
	listenPort := fs.Uint("listen-port", uint(cfg.Server.ListenPort), "client-facing listen port")
	reusePort := fs.Bool("reuse-port", cfg.Server.ReusePort, "share the listen port across workers via SO_REUSEPORT")
	gracefulTimeoutMS := fs.Int("graceful-timeout-ms", cfg.Shutdown.GracefulTimeoutMS, "graceful shutdown drain deadline in milliseconds")
	logLevel := fs.String("log-level", cfg.Logging.Level, "log level: debug, info, warn, error")
	logJSON := fs.Bool("log-json", cfg.Logging.JSON, "emit logs as JSON instead of console text")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		fileCfg, err := LoadFile(*configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "metrics-enabled":
			cfg.Metrics.Enabled = *metricsEnabled
		case "metrics-port":
			cfg.Metrics.Port = uint16(*metricsPort)
		case "metrics-path":
			cfg.Metrics.Path = *metricsPath
		case "worker-threads":
			cfg.Server.WorkerThreads = *workerThreads
		case "listen-address":
			cfg.Server.ListenAddress = *listenAddress
		case "listen-port":
			cfg.Server.ListenPort = uint16(*listenPort)
		case "reuse-port":
			cfg.Server.ReusePort = *reusePort
		case "graceful-timeout-ms":
			cfg.Shutdown.GracefulTimeoutMS = *gracefulTimeoutMS
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-json":
			cfg.Logging.JSON = *logJSON
		}
	})

	return cfg, nil
}

// LogLevel maps the config's logging.level string onto logging.Level,
// defaulting to InfoLevel for an unrecognized value.
func (c Config) LogLevel() logging.Level {
	switch c.Logging.Level {
	case "debug":
		return logging.DebugLevel
	case "warn":
		return logging.WarnLevel
	case "error":
		return logging.ErrorLevel
	default:
		return logging.InfoLevel
	}
}
