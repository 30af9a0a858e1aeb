// Package config loads workbench and development service settings from
// defaults, an optional YAML file and ABYSS_* environment variables, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/observability"
	"github.com/aretw0/abyss/pkg/persistence/middleware"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store backends accepted by Server.Store.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete set of settings.
type Config struct {
	Service   ServiceConfig               `yaml:"service" mapstructure:"service"`
	Solver    domain.SolverConfig         `yaml:"solver" mapstructure:"solver"`
	Workbench WorkbenchConfig             `yaml:"workbench" mapstructure:"workbench"`
	Server    ServerConfig                `yaml:"server" mapstructure:"server"`
	Redis     RedisConfig                 `yaml:"redis" mapstructure:"redis"`
	Log       LogConfig                   `yaml:"log" mapstructure:"log"`
	Tracing   observability.TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ServiceConfig locates the optimization service.
type ServiceConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// WorkbenchConfig tunes marker placement.
type WorkbenchConfig struct {
	LoadMagnitude float64 `yaml:"load_magnitude" mapstructure:"load_magnitude"`
	GlyphLength   float64 `yaml:"glyph_length" mapstructure:"glyph_length"`
	GlyphRadius   float64 `yaml:"glyph_radius" mapstructure:"glyph_radius"`
}

// ServerConfig configures the development service.
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	Store        string        `yaml:"store" mapstructure:"store"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
	StepDelay    time.Duration `yaml:"step_delay" mapstructure:"step_delay"`
	JobTimeout   time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
	// ResultKey is a base64 AES-256 key sealing result meshes at rest.
	// Empty stores them in the clear.
	ResultKey          string   `yaml:"result_key" mapstructure:"result_key"`
	ResultFallbackKeys []string `yaml:"result_fallback_keys" mapstructure:"result_fallback_keys"`
}

// Encryption returns the result encryption settings, or nil when disabled.
func (s ServerConfig) Encryption() (*middleware.EncryptionConfig, error) {
	if s.ResultKey == "" {
		return nil, nil
	}
	cfg, err := middleware.ParseKeys(s.ResultKey, s.ResultFallbackKeys...)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RedisConfig configures the redis job store.
type RedisConfig struct {
	Addr     string        `yaml:"addr" mapstructure:"addr"`
	Password string        `yaml:"password" mapstructure:"password"`
	DB       int           `yaml:"db" mapstructure:"db"`
	Prefix   string        `yaml:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Service: ServiceConfig{
			URL:            "http://localhost:8000",
			RequestTimeout: 30 * time.Second,
		},
		Solver: domain.DefaultSolverConfig(),
		Workbench: WorkbenchConfig{
			LoadMagnitude: domain.DefaultMagnitude,
			GlyphLength:   0.3,
			GlyphRadius:   0.05,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			Store:        StoreMemory,
			PollInterval: 500 * time.Millisecond,
			StepDelay:    50 * time.Millisecond,
		},
		Redis: RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "abyss:job:",
			TTL:    24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.TracingConfig{
			ServiceName: "abyss",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// envKeys maps environment variables to dotted config keys.
var envKeys = map[string]string{
	"ABYSS_SERVICE_URL":            "service.url",
	"ABYSS_REQUEST_TIMEOUT":        "service.request_timeout",
	"ABYSS_SOLVER_NELX":            "solver.nelx",
	"ABYSS_SOLVER_NELY":            "solver.nely",
	"ABYSS_SOLVER_NELZ":            "solver.nelz",
	"ABYSS_SOLVER_PENAL":           "solver.penal",
	"ABYSS_SOLVER_RMIN":            "solver.rmin",
	"ABYSS_SOLVER_VOLUME_FRACTION": "solver.volume_fraction",
	"ABYSS_SOLVER_MAX_ITERATIONS":  "solver.max_iterations",
	"ABYSS_SOLVER_TOLX":            "solver.tolx",
	"ABYSS_LOAD_MAGNITUDE":         "workbench.load_magnitude",
	"ABYSS_SERVER_ADDR":            "server.addr",
	"ABYSS_SERVER_STORE":           "server.store",
	"ABYSS_POLL_INTERVAL":          "server.poll_interval",
	"ABYSS_STEP_DELAY":             "server.step_delay",
	"ABYSS_JOB_TIMEOUT":            "server.job_timeout",
	"ABYSS_RESULT_KEY":             "server.result_key",
	"ABYSS_REDIS_ADDR":             "redis.addr",
	"ABYSS_REDIS_PASSWORD":         "redis.password",
	"ABYSS_REDIS_DB":               "redis.db",
	"ABYSS_REDIS_PREFIX":           "redis.prefix",
	"ABYSS_REDIS_TTL":              "redis.ttl",
	"ABYSS_LOG_LEVEL":              "log.level",
	"ABYSS_LOG_FORMAT":             "log.format",
	"ABYSS_TRACING_ENABLED":        "tracing.enabled",
	"ABYSS_TRACING_EXPORTER":       "tracing.exporter",
	"ABYSS_TRACING_SAMPLE_RATIO":   "tracing.sample_ratio",
}

// EnvVars lists the recognised environment variables in sorted order.
func EnvVars() []string {
	names := make([]string, 0, len(envKeys))
	for k := range envKeys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LookupFunc reads one environment variable.
type LookupFunc func(string) (string, bool)

// Load reads path (skipped when empty) and the process environment over the
// defaults.
func Load(path string) (Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(path string, lookup LookupFunc) (Config, error) {
	raw := map[string]any{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	if lookup != nil {
		for env, key := range envKeys {
			if v, ok := lookup(env); ok && v != "" {
				setPath(raw, strings.Split(key, "."), v)
			}
		}
	}

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setPath(m map[string]any, path []string, v string) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// Validate reports every invalid setting together.
func (c Config) Validate() error {
	var errs []error
	if err := c.Solver.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Service.URL == "" {
		errs = append(errs, errors.New("service.url is required"))
	}
	if c.Server.Store != StoreMemory && c.Server.Store != StoreRedis {
		errs = append(errs, fmt.Errorf("server.store must be %q or %q, got %q", StoreMemory, StoreRedis, c.Server.Store))
	}
	if c.Server.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("server.poll_interval must be > 0, got %s", c.Server.PollInterval))
	}
	if _, err := c.Server.Encryption(); err != nil {
		errs = append(errs, fmt.Errorf("server.result_key: %w", err))
	}
	if !(c.Workbench.LoadMagnitude > 0) {
		errs = append(errs, fmt.Errorf("workbench.load_magnitude must be > 0, got %v", c.Workbench.LoadMagnitude))
	}
	return errors.Join(errs...)
}
