// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rcourtman/pulse-anomaly/internal/ai/prompt"
	"github.com/rcourtman/pulse-anomaly/internal/anomaly"
	"github.com/rcourtman/pulse-anomaly/internal/logging"
	"github.com/rcourtman/pulse-anomaly/internal/monitor"
	"github.com/rcourtman/pulse-anomaly/internal/utils"
	"github.com/rs/zerolog/log"
)

// EnvFileVar names the variable holding an explicit .env path.
const EnvFileVar = "PULSE_ANOMALY_ENV_FILE"

const defaultEnvFile = ".env"

// Config holds all runtime settings
type Config struct {
	// Backend
	OllamaURL       string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	Model           string        `env:"OLLAMA_MODEL" envDefault:"qwen3:8b"`
	AnalysisTimeout time.Duration `env:"ANALYSIS_TIMEOUT" envDefault:"5m"`
	DNSCacheTTL     time.Duration `env:"DNS_CACHE_TTL" envDefault:"5m"`

	// Classification
	CPUThreshold    float64 `env:"CPU_THRESHOLD" envDefault:"80"`
	MemoryThreshold float64 `env:"MEMORY_THRESHOLD" envDefault:"85"`

	// Loop
	Duration time.Duration `env:"MONITOR_DURATION" envDefault:"60s"`
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"10s"`

	// Analysis
	ShowThinking   bool   `env:"SHOW_THINKING" envDefault:"false"`
	Stream         bool   `env:"STREAM" envDefault:"true"`
	PromptTemplate string `env:"PROMPT_TEMPLATE" envDefault:"plain"`
	// PromptTemplatesFile is a YAML file of extra templates, registered before validation.
	PromptTemplatesFile string `env:"PROMPT_TEMPLATES_FILE"`

	// Process ranking
	TopProcesses       int           `env:"TOP_PROCESSES" envDefault:"10"`
	ProcessSampleDelay time.Duration `env:"PROCESS_SAMPLE_DELAY" envDefault:"1s"`
	ProcessExclude     []string      `env:"PROCESS_EXCLUDE"`

	// Observability
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"auto"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// EnvFile is the .env file that was read, empty when none was.
	EnvFile string `env:"-"`
}

// Load reads the process environment, filling unset keys from the .env file.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	return loadFrom(os.Environ())
}

func loadFrom(environ []string) (*Config, error) {
	vars := env.ToMap(environ)

	path, fileVars, err := readEnvFile(vars)
	if err != nil {
		return nil, err
	}
	for k, v := range fileVars {
		if _, ok := vars[k]; !ok {
			vars[k] = v
		}
	}

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{
		Environment: vars,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(true): func(v string) (interface{}, error) {
				return utils.ParseBool(v)
			},
			reflect.TypeOf([]string(nil)): func(v string) (interface{}, error) {
				return utils.SplitList(v), nil
			},
		},
	}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.EnvFile = path
	cfg.normalize()

	if path != "" {
		log.Debug().Str("file", path).Int("keys", len(fileVars)).Msg("Loaded .env file")
	}
	return cfg, nil
}

// readEnvFile returns the variables of the configured .env file. An explicit
// path must exist; the default ./.env is optional.
func readEnvFile(vars map[string]string) (string, map[string]string, error) {
	path := strings.TrimSpace(vars[EnvFileVar])
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("env file %s: %w", path, err)
	}

	fileVars, err := godotenv.Read(path)
	if err != nil {
		return "", nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return path, fileVars, nil
}

func (c *Config) normalize() {
	c.OllamaURL = strings.TrimRight(strings.TrimSpace(c.OllamaURL), "/")
	c.Model = strings.TrimSpace(c.Model)
	c.PromptTemplate = strings.ToLower(strings.TrimSpace(c.PromptTemplate))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.MetricsAddr = strings.TrimSpace(c.MetricsAddr)
	c.PromptTemplatesFile = strings.TrimSpace(c.PromptTemplatesFile)
}

// RegisterTemplates loads PromptTemplatesFile, if set, into the prompt registry.
func (c *Config) RegisterTemplates() error {
	if c.PromptTemplatesFile == "" {
		return nil
	}
	names, err := prompt.LoadFile(c.PromptTemplatesFile)
	if err != nil {
		return err
	}
	log.Debug().Str("file", c.PromptTemplatesFile).Strs("templates", names).Msg("Registered prompt templates")
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	c.normalize()

	u, err := url.Parse(c.OllamaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid Ollama URL %q: must be http:// or https:// with a host", c.OllamaURL)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}

	if c.CPUThreshold <= 0 || c.CPUThreshold > 100 {
		return fmt.Errorf("CPU threshold must be within (0, 100], got %v", c.CPUThreshold)
	}
	if c.MemoryThreshold <= 0 || c.MemoryThreshold > 100 {
		return fmt.Errorf("memory threshold must be within (0, 100], got %v", c.MemoryThreshold)
	}

	if c.Duration < 0 {
		return fmt.Errorf("monitor duration cannot be negative")
	}
	if c.Interval < 0 {
		return fmt.Errorf("monitor interval cannot be negative")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("analysis timeout must be positive")
	}
	if c.DNSCacheTTL <= 0 {
		return fmt.Errorf("DNS cache TTL must be positive")
	}

	if c.TopProcesses < 0 {
		return fmt.Errorf("top processes cannot be negative")
	}
	if c.ProcessSampleDelay < 0 {
		return fmt.Errorf("process sample delay cannot be negative")
	}

	if _, err := prompt.Lookup(c.PromptTemplate); err != nil {
		return err
	}
	if !logging.ValidLevel(c.LogLevel) {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: use auto, json or console", c.LogFormat)
	}

	return nil
}

// Thresholds returns the classifier thresholds.
func (c *Config) Thresholds() anomaly.Thresholds {
	return anomaly.Thresholds{CPU: c.CPUThreshold, Memory: c.MemoryThreshold}
}

// LoopConfig converts the settings into a monitoring run policy.
func (c *Config) LoopConfig() monitor.LoopConfig {
	return monitor.LoopConfig{
		Duration:        c.Duration,
		Interval:        c.Interval,
		Thresholds:      c.Thresholds(),
		Model:           c.Model,
		ShowThinking:    c.ShowThinking,
		Stream:          c.Stream,
		Template:        c.PromptTemplate,
		TopProcesses:    c.TopProcesses,
		SampleDelay:     c.ProcessSampleDelay,
		Exclude:         c.ProcessExclude,
		AnalysisTimeout: c.AnalysisTimeout,
	}
}
