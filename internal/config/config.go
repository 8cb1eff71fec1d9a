// Package config loads service configuration from defaults and WHATNOW_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	OpenAI  OpenAIConfig
	Vector  VectorConfig
	Auth    AuthConfig
	Worker  WorkerConfig
	MCP     MCPConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type VectorConfig struct {
	Namespace string
}

type AuthConfig struct {
	JWTSecret string
}

type WorkerConfig struct {
	PollInterval time.Duration
}

// MCPConfig controls the MCP stdio server. Tools act as UserID; when empty,
// the MCP server is not started.
type MCPConfig struct {
	UserID string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 8000},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-4",
			EmbedModel: "text-embedding-3-small",
		},
		Vector: VectorConfig{Namespace: "default"},
		Worker: WorkerConfig{PollInterval: 500 * time.Millisecond},
		Log:    LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/whatnow"
	}
	return "./data"
}

// Load reads configuration from defaults and environment overrides. The
// OpenAI API key and JWT secret are required.
func Load() (Config, error) {
	cfg := defaults()

	if v := os.Getenv("WHATNOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WHATNOW_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("WHATNOW_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("WHATNOW_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("WHATNOW_OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("WHATNOW_OPENAI_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v := os.Getenv("WHATNOW_EMBEDDING_MODEL"); v != "" {
		cfg.OpenAI.EmbedModel = v
	}
	if v := os.Getenv("WHATNOW_VECTOR_NAMESPACE"); v != "" {
		cfg.Vector.Namespace = v
	}
	if v := os.Getenv("WHATNOW_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("WHATNOW_WORKER_POLL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WHATNOW_WORKER_POLL %q: %w", v, err)
		}
		cfg.Worker.PollInterval = d
	}
	if v := os.Getenv("WHATNOW_MCP_USER_ID"); v != "" {
		cfg.MCP.UserID = v
	}
	if v := os.Getenv("WHATNOW_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key. Set it via environment variable WHATNOW_OPENAI_API_KEY")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing required config: JWT secret. Set it via environment variable WHATNOW_JWT_SECRET")
	}

	return cfg, nil
}
