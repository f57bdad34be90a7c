// Package config loads taskdesk settings from an optional YAML file and
// TASKDESK_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/ldi/taskdesk/internal/db"
	"github.com/ldi/taskdesk/internal/llm"
	"github.com/ldi/taskdesk/internal/synth"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	namespace   = "TASKDESK"
	DefaultDir  = ".taskdesk"
	DefaultPath = DefaultDir + "/config.yaml"
)

type Database struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	MinConns       int           `yaml:"min_conns" split_words:"true"`
	MaxConns       int           `yaml:"max_conns" split_words:"true"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" split_words:"true"`
}

type LLM struct {
	Provider string        `yaml:"provider"`
	BaseURL  string        `yaml:"base_url" split_words:"true"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Guard struct {
	// Strict rejects statements that touch tables other than CONTACTS and
	// TASKS.
	Strict bool `yaml:"strict"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Database Database `yaml:"database" envconfig:"DB"`
	LLM      LLM      `yaml:"llm" envconfig:"LLM"`
	Guard    Guard    `yaml:"guard" envconfig:"GUARD"`
	Log      Log      `yaml:"log" envconfig:"LOG"`

	// Match overrides the case-insensitive match style taught to the model
	// ("ilike" or "lower"). Empty follows the database driver.
	Match string `yaml:"match"`

	Snapshot     string `yaml:"snapshot"`
	AutoSnapshot bool   `yaml:"auto_snapshot" split_words:"true"`
	HTTPAddr     string `yaml:"http_addr" split_words:"true"`
}

func Default() *Config {
	opts := db.DefaultOptions()
	return &Config{
		Database: Database{
			Driver:         "sqlite",
			DSN:            DefaultDir + "/taskdesk.db",
			MinConns:       opts.MinConns,
			MaxConns:       opts.MaxConns,
			AcquireTimeout: opts.AcquireTimeout,
		},
		LLM: LLM{
			Provider: llm.ProviderOpenAI,
			BaseURL:  llm.DefaultBaseURL,
			Model:    llm.DefaultModel,
			Timeout:  llm.DefaultTimeout,
		},
		Guard:    Guard{Strict: true},
		Log:      Log{Level: "info", Format: "console"},
		Snapshot: DefaultDir + "/snapshot.jsonl",
		HTTPAddr: ":8080",
	}
}

// Load starts from Default, applies the YAML file at path if it exists and
// then the environment. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process(namespace, cfg); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = fallbackKey(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fallbackKey(provider string) string {
	keys := []string{"GROQ_API_KEY", "OPENAI_API_KEY"}
	if strings.EqualFold(provider, llm.ProviderGemini) {
		keys = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pgx":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max_conns must be at least 1, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 1 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database min_conns must be between 1 and %d, got %d", c.Database.MaxConns, c.Database.MinConns)
	}
	switch strings.ToLower(c.LLM.Provider) {
	case llm.ProviderOpenAI, llm.ProviderGemini, "groq":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	switch strings.ToLower(c.Match) {
	case "", "ilike", "lower":
	default:
		return fmt.Errorf("unsupported match style %q", c.Match)
	}
	return nil
}

// DBOptions returns the pool settings.
func (c *Config) DBOptions(logger *zap.Logger) db.Options {
	return db.Options{
		MinConns:       c.Database.MinConns,
		MaxConns:       c.Database.MaxConns,
		AcquireTimeout: c.Database.AcquireTimeout,
		Logger:         logger,
	}
}

func (c *Config) LLMConfig(logger *zap.Logger) llm.Config {
	return llm.Config{
		Provider: c.LLM.Provider,
		BaseURL:  c.LLM.BaseURL,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		Timeout:  c.LLM.Timeout,
		Logger:   logger,
	}
}

// Dialect is the SQL dialect taught to the model.
func (c *Config) Dialect() synth.Dialect {
	switch strings.ToLower(c.Match) {
	case "ilike":
		return synth.Postgres
	case "lower":
		return synth.SQLite
	}
	return synth.DialectFor(c.Database.Driver)
}
