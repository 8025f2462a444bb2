package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	sep     string // list separator in env vars and `config set`
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "PROXY_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "PROXY_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "model.upstream_base", typ: kString, env: "UPSTREAM_BASE_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.UpstreamBase = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.UpstreamBase },
	},
	{
		key: "model.public", typ: kString, env: "PUBLIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Model.Public = v.(string) },
		extract: func(cfg Config) any { return cfg.Model.Public },
	},
	{
		key: "model.aliases", typ: kList, env: "MODEL_ALIASES", sep: ",",
		apply:   func(cfg *Config, v any) { cfg.Model.Aliases = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Model.Aliases, ",") },
	},
	{
		key: "novita.api_key", typ: kString, env: "NOVITA_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Novita.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Novita.APIKey },
	},
	{
		key: "novita.endpoints", typ: kList, env: "NOVITA_OPENAI_ENDPOINTS", sep: ";",
		apply:   func(cfg *Config, v any) { cfg.Novita.Endpoints = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Novita.Endpoints, ";") },
	},
	{
		key: "novita.timeout", typ: kString, env: "NOVITA_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Novita.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Novita.Timeout },
	},
	{
		key: "stream.chunk_size", typ: kInt, env: "STREAM_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Stream.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.ChunkSize },
	},
	{
		key: "stream.delay_ms", typ: kInt, env: "STREAM_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Stream.DelayMS = v.(int) },
		extract: func(cfg Config) any { return cfg.Stream.DelayMS },
	},
	{
		key: "log.level", typ: kString, env: "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// splitList splits raw on sep, trimming entries and dropping empty ones.
func splitList(raw, sep string) []string {
	var out []string
	for _, s := range strings.Split(raw, sep) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kList:
			v, ok, err := b.GetList(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, splitList(strings.Join(v, s.sep), s.sep))
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kList:
			s.apply(cfg, splitList(raw, s.sep))
		}
	}
}
