// Package config loads the chatstream YAML config file.
//
// String values may reference the environment as ${VAR}; a .env file next to
// the config file or in a parent of the working directory is loaded first.
//
//	provider: openai
//	model: gpt-5
//	api_key: ${OPENAI_API_KEY}
//	tools: [web_search]
//	database:
//	  driver: sqlite
//	  dsn: ~/.local/share/chatstream/chat.db
//	log:
//	  level: info
//	  file: ~/.local/state/chatstream/chat.log
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/logging"
	"github.com/bitop-dev/chatstream/pkg/session"
	"github.com/bitop-dev/chatstream/pkg/tools"
)

// FileConfig is the YAML structure of the config file.
type FileConfig struct {
	// Provider: "openai" is the only kind registered today.
	Provider string `yaml:"provider"`

	// Model ID to use (e.g. "gpt-5", "gpt-4o").
	Model string `yaml:"model"`

	// BaseURL overrides the default endpoint for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`

	// APIKey can be a literal key or "${ENV_VAR}".
	APIKey string `yaml:"api_key"`

	// Organization is sent as the OpenAI-Organization header when set.
	Organization string `yaml:"organization"`

	// API forces the wire dialect: "auto" (default), "chat" or "responses".
	API string `yaml:"api"`

	// VectorStoreIDs enable the file_search tool.
	VectorStoreIDs []string `yaml:"vector_store_ids"`

	// MaxTokens caps the response length (0 = provider default).
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls randomness (nil = provider default).
	Temperature *float64 `yaml:"temperature"`

	// Tools are hosted tools requested on every call, on top of the model's
	// defaults.
	Tools []string `yaml:"tools"`

	// SystemPrompt, when set, opens every conversation.
	SystemPrompt string `yaml:"system_prompt"`

	Database DatabaseConfig  `yaml:"database"`
	Server   ServerConfig    `yaml:"server"`
	Log      logging.Options `yaml:"log"`
}

// DatabaseConfig selects the session store.
type DatabaseConfig struct {
	// Driver: "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	// Empty sqlite DSN means the default data directory.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// OpenStore opens the configured session store.
func (d DatabaseConfig) OpenStore() (*session.SQLStore, error) {
	switch d.Driver {
	case "", "sqlite", "sqlite3":
		dsn := d.DSN
		if dsn == "" {
			dsn = session.DefaultSQLitePath()
		}
		return session.OpenSQLite(dsn)
	case "pgx", "postgres", "postgresql":
		return session.OpenPostgres(d.DSN, session.PoolOptions{
			MaxOpen: d.MaxOpenConns,
			MaxIdle: d.MaxIdleConns,
		})
	}
	return nil, fmt.Errorf("config: unsupported database driver %q", d.Driver)
}

// ServerConfig configures chatd.
type ServerConfig struct {
	Addr string `yaml:"addr"` // default ":8080"
}

// ProviderConfig returns the provider settings as sent with each request.
func (c *FileConfig) ProviderConfig() ai.ProviderConfig {
	pc := ai.ProviderConfig{
		Provider:    ai.ProviderKind(c.Provider),
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Model:       c.Model,
		Temperature: c.Temperature,
	}
	if c.MaxTokens > 0 {
		n := c.MaxTokens
		pc.MaxTokens = &n
	}
	if c.Organization != "" || c.API != "" || len(c.VectorStoreIDs) > 0 {
		pc.OpenAI = &ai.OpenAIOptions{
			Organization:   c.Organization,
			API:            c.API,
			VectorStoreIDs: append([]string(nil), c.VectorStoreIDs...),
		}
	}
	return pc
}

// ToolTypes returns the configured hosted tools.
func (c *FileConfig) ToolTypes() []ai.ToolType {
	out := make([]ai.ToolType, 0, len(c.Tools))
	for _, t := range c.Tools {
		out = append(out, ai.ToolType(t))
	}
	return out
}

// DefaultPath returns the platform-appropriate config file location.
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatstream", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "chatstream", "config.yaml")
}

// LoadEnv loads the first .env found next to configPath, or else in the
// working directory or one of its parents. Variables already set in the
// environment win. A missing .env is not an error.
func LoadEnv(configPath string) {
	if configPath != "" {
		p := filepath.Join(filepath.Dir(configPath), ".env")
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}

	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		p := filepath.Join(dir, ".env")
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// LoadFileConfig reads and parses a YAML config file, expanding ${ENV_VAR}
// references in string values.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*FileConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg FileConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := validateFileConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validateFileConfig(cfg *FileConfig) error {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.API = strings.ToLower(strings.TrimSpace(cfg.API))
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))

	var errs []error
	if cfg.Provider == "" {
		errs = append(errs, errors.New("provider is required"))
	}
	if cfg.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	switch cfg.API {
	case "", ai.APIAuto, ai.APIChat, ai.APIResponses:
	default:
		errs = append(errs, fmt.Errorf("api must be auto, chat or responses, got %q", cfg.API))
	}
	hosted := tools.Hosted()
	for _, t := range cfg.Tools {
		if hosted.Get(ai.ToolType(t)) == nil {
			errs = append(errs, fmt.Errorf("unknown tool %q (known: %v)", t, hosted.Types()))
		}
	}
	switch cfg.Database.Driver {
	case "", "sqlite", "sqlite3", "pgx", "postgres", "postgresql":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver))
	}
	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
