package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server ServerConfig
	Model  ModelConfig
	Novita NovitaConfig
	Stream StreamConfig
	Log    LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// ModelConfig names the single model the relay fronts.
type ModelConfig struct {
	UpstreamBase string
	Public       string
	Aliases      []string
}

type NovitaConfig struct {
	APIKey    string
	Endpoints []string
	Timeout   string
}

type StreamConfig struct {
	ChunkSize int
	DelayMS   int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 14000,
		},
		Model: ModelConfig{
			UpstreamBase: "meta-llama/llama-3.2-3b-instruct",
			Public:       "meta-llama/llama-3.2-3b-instruct/fp-16-fast-vllm-1",
		},
		Novita: NovitaConfig{
			Endpoints: []string{
				"https://api.novita.ai/v3/openai/chat/completions",
				"https://api.novita.ai/openai/v1/chat/completions",
				"https://api.novita.ai/v1/chat/completions",
			},
			Timeout: "60s",
		},
		Stream: StreamConfig{
			ChunkSize: 64,
			DelayMS:   30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend
// ($XDG_CONFIG_HOME/novirelay/config.json) and applies environment
// overrides. The Novita API key is read from NOVITA_API_KEY only.
//
// A missing API key is not an error: the relay still starts and answers
// chat requests with a server error until a key is configured.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the relay cannot start with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Model.UpstreamBase) == "" {
		return fmt.Errorf("missing required config: model.upstream_base")
	}
	if strings.TrimSpace(c.Model.Public) == "" {
		return fmt.Errorf("missing required config: model.public")
	}
	if len(c.Novita.Endpoints) == 0 {
		return fmt.Errorf("missing required config: novita.endpoints")
	}
	if _, err := time.ParseDuration(c.Novita.Timeout); err != nil {
		return fmt.Errorf("invalid novita.timeout %q: %w", c.Novita.Timeout, err)
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// UpstreamTimeout returns the per-attempt upstream timeout.
func (c Config) UpstreamTimeout() time.Duration {
	d, err := time.ParseDuration(c.Novita.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// StreamDelay returns the pause between simulated stream content frames.
func (c Config) StreamDelay() time.Duration {
	return time.Duration(c.Stream.DelayMS) * time.Millisecond
}
