package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	DatabaseDSN    string
	ServerAddr     string
	SigningKey     []byte
	AllowedOrigins []string
	Store          string
	AI             AIConfig
}

// AIConfig holds the completion service settings, read from the
// environment.
type AIConfig struct {
	BaseURL      string        `env:"GOCHAT_AI_BASE_URL" env-default:"https://api.openai.com/v1" env-description:"OpenAI compatible API base URL"`
	APIKey       string        `env:"GOCHAT_AI_API_KEY" env-description:"API key for the completion service"`
	Model        string        `env:"GOCHAT_AI_MODEL" env-default:"gpt-4o-mini" env-description:"chat completion model"`
	Timeout      time.Duration `env:"GOCHAT_AI_TIMEOUT" env-default:"20s" env-description:"timeout for generating a reply"`
	ProbeTimeout time.Duration `env:"GOCHAT_AI_PROBE_TIMEOUT" env-default:"5s" env-description:"timeout for the availability probe"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string, store string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	switch store {
	case StorePostgres:
		if databaseDSN == "" {
			return nil, fmt.Errorf("database DSN cannot be empty")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown store %q, expected %q or %q", store, StorePostgres, StoreMemory)
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	var aiCfg AIConfig
	if err := cleanenv.ReadEnv(&aiCfg); err != nil {
		return nil, fmt.Errorf("read ai config: %w", err)
	}

	return &Config{
		DatabaseDSN:    databaseDSN,
		ServerAddr:     serverAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		Store:          store,
		AI:             aiCfg,
	}, nil
}

// AIUsage describes the environment variables read into AIConfig.
func AIUsage() string {
	var aiCfg AIConfig
	desc, err := cleanenv.GetDescription(&aiCfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
