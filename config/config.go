package config

import (
	"errors"
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"io/fs"
	"os"
	"time"
)

const (
	SecretBackendMemory = "memory"
	SecretBackendRedis  = "redis"

	AccumulationDeltas     = "deltas"
	AccumulationCumulative = "cumulative"
)

type Gateway struct {
	BaseURL        string        `yaml:"base_url" env:"GATEWAY_BASE_URL" env-default:"https://backend.compiler.inc"`
	AppID          string        `yaml:"app_id" env:"GATEWAY_APP_ID" env-required:"true"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"GATEWAY_REQUEST_TIMEOUT" env-default:"60s"`
	StreamFormat   string        `yaml:"stream_format" env:"GATEWAY_STREAM_FORMAT" env-default:"auto"`
}

type Auth struct {
	IdentityService string        `yaml:"identity_service" env:"AUTH_IDENTITY_SERVICE" env-default:"apple-id-token"`
	IdentityAccount string        `yaml:"identity_account" env:"AUTH_IDENTITY_ACCOUNT" env-default:"user"`
	AccessService   string        `yaml:"access_service" env:"AUTH_ACCESS_SERVICE" env-default:"access-token"`
	AccessAccount   string        `yaml:"access_account" env:"AUTH_ACCESS_ACCOUNT" env-default:"user"`
	RetryMax        int           `yaml:"retry_max" env:"AUTH_RETRY_MAX" env-default:"2"`
	RetryWaitMin    time.Duration `yaml:"retry_wait_min" env:"AUTH_RETRY_WAIT_MIN" env-default:"200ms"`
	RetryWaitMax    time.Duration `yaml:"retry_wait_max" env:"AUTH_RETRY_WAIT_MAX" env-default:"2s"`
}

type SecretStore struct {
	Backend   string `yaml:"backend" env:"SECRET_STORE_BACKEND" env-default:"memory"`
	KeyPrefix string `yaml:"key_prefix" env:"SECRET_STORE_KEY_PREFIX" env-default:"ai_gateway:"`
}

type Redis struct {
	Endpoint string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Chat struct {
	SystemPrompt string `yaml:"system_prompt" env:"CHAT_SYSTEM_PROMPT"`
	Provider     string `yaml:"provider" env:"CHAT_PROVIDER" env-default:"openai"`
	Model        string `yaml:"model" env:"CHAT_MODEL" env-default:"chatgpt-4o-latest"`
	// Negative means the backend default.
	Temperature float64 `yaml:"temperature" env:"CHAT_TEMPERATURE" env-default:"-1"`
	// Zero means the backend default.
	MaxTokens int `yaml:"max_tokens" env:"CHAT_MAX_TOKENS" env-default:"0"`
	// Zero disables history trimming.
	MaxContextTokens int    `yaml:"max_context_tokens" env:"CHAT_MAX_CONTEXT_TOKENS" env-default:"0"`
	Accumulation     string `yaml:"accumulation" env:"CHAT_ACCUMULATION" env-default:"deltas"`
}

type Log struct {
	Level       string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT" env-default:"false"`
	Enabled     bool   `yaml:"enabled" env:"LOG_ENABLED" env-default:"false"`
}

type Config struct {
	Gateway     Gateway     `yaml:"gateway"`
	Auth        Auth        `yaml:"auth"`
	SecretStore SecretStore `yaml:"secret_store"`
	Redis       Redis       `yaml:"redis"`
	Chat        Chat        `yaml:"chat"`
	Log         Log         `yaml:"log"`
}

// LoadConfig reads cfgPath and overlays the environment. Missing env files
// are skipped; variables already set in the environment win over them.
func LoadConfig(cfgPath string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}
	var cfg Config
	if cfgPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
	}
	return &cfg, nil
}

// LoadEnv builds the config from the environment alone.
func LoadEnv(envFiles ...string) (*Config, error) {
	return LoadConfig("", envFiles...)
}

func loadEnvFiles(envFiles []string) error {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}
	return nil
}
