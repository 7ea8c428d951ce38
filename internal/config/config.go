package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Google     Google     `yaml:"google"`
	Extraction Extraction `yaml:"extraction"`
	Scan       Scan       `yaml:"scan"`
	Server     Server     `yaml:"server"`
	Output     Output     `yaml:"output"`
	Logging    Logging    `yaml:"logging"`
}

// Google holds OAuth client settings for the Gmail API. The secrets live
// in environment variables; the config only names them.
type Google struct {
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

type Extraction struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	OpenAIModel string `yaml:"openai_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	// BodyLimit caps the email body sent to the model. RecordLimit caps
	// the raw content kept on a processed-email row.
	BodyLimit   int `yaml:"body_limit"`
	RecordLimit int `yaml:"record_limit"`
}

type Scan struct {
	MaxResults      int64  `yaml:"max_results"`
	LookbackHours   int    `yaml:"lookback_hours"`
	DefaultHour     int    `yaml:"default_hour"`
	DefaultTimezone string `yaml:"default_timezone"`
}

type Server struct {
	Port          int    `yaml:"port"`
	CronSecretEnv string `yaml:"cron_secret_env"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for inboxpilot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "inboxpilot")
}

// DataDir returns the XDG data directory for inboxpilot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "inboxpilot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/inboxpilot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'inboxpilot init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Google: Google{
			ClientIDEnv:     "GOOGLE_CLIENT_ID",
			ClientSecretEnv: "GOOGLE_CLIENT_SECRET",
		},
		Extraction: Extraction{
			Provider:    "openai",
			Model:       "qwen2.5:7b",
			OllamaURL:   "http://localhost:11434",
			OpenAIModel: "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			BodyLimit:   4000,
			RecordLimit: 5000,
		},
		Scan: Scan{
			MaxResults:      50,
			LookbackHours:   24,
			DefaultHour:     8,
			DefaultTimezone: "America/Los_Angeles",
		},
		Server: Server{
			Port:          8000,
			CronSecretEnv: "CRON_SECRET",
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
