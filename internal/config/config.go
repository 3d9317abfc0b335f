package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendFile     = "file"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"

	defaultStoreKey        = "chat_sessions"
	defaultGenerateTimeout = 60 * time.Second
	defaultMaxInputLength  = 4000
)

// Config is read once at startup by the entrypoints.
type Config struct {
	Provider string
	Model    string
	// APIKey is the provider key from the environment. Ignored when
	// ParamPrefix is set.
	APIKey      string
	ParamPrefix string

	StoreBackend string
	StorePath    string
	StateTable   string
	StoreKey     string

	GenerateTimeout time.Duration
	MaxInputLength  int
}

// TokenParameter is the SSM parameter holding the provider API key.
func (c Config) TokenParameter() string {
	return strings.TrimRight(c.ParamPrefix, "/") + "/api-token"
}

// UsesAWS reports whether any configured component talks to AWS.
func (c Config) UsesAWS() bool {
	return c.ParamPrefix != "" || c.StoreBackend == BackendDynamoDB
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		Provider:        strings.ToLower(envString(getenv, "CHAT_PROVIDER", ProviderGemini)),
		Model:           strings.TrimSpace(getenv("CHAT_MODEL")),
		ParamPrefix:     strings.TrimSpace(getenv("PARAM_PREFIX")),
		StoreBackend:    strings.ToLower(envString(getenv, "CHAT_STORE_BACKEND", BackendFile)),
		StorePath:       strings.TrimSpace(getenv("CHAT_STORE_PATH")),
		StateTable:      strings.TrimSpace(getenv("STATE_TABLE")),
		StoreKey:        envString(getenv, "CHAT_STORE_KEY", defaultStoreKey),
		GenerateTimeout: envDuration(getenv, "CHAT_GENERATE_TIMEOUT", defaultGenerateTimeout),
		MaxInputLength:  envInt(getenv, "CHAT_MAX_INPUT_LENGTH", defaultMaxInputLength),
	}

	switch cfg.Provider {
	case ProviderGemini:
		cfg.APIKey = strings.TrimSpace(getenv("GOOGLE_AI_API_KEY"))
	case ProviderOpenAI:
		cfg.APIKey = strings.TrimSpace(getenv("OPENAI_API_KEY"))
	default:
		return Config{}, fmt.Errorf("config: unsupported CHAT_PROVIDER %q", cfg.Provider)
	}

	switch cfg.StoreBackend {
	case BackendFile:
		if cfg.StorePath == "" {
			home := getenv("HOME")
			if home == "" {
				return Config{}, errors.New("config: CHAT_STORE_PATH is not set and HOME is unknown")
			}
			cfg.StorePath = filepath.Join(home, ".hta-chat", "sessions.json")
		}
	case BackendDynamoDB:
		if cfg.StateTable == "" {
			return Config{}, errors.New("config: STATE_TABLE is required for the dynamodb store backend")
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("config: unsupported CHAT_STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func envString(getenv func(string) string, key, def string) string {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(getenv func(string) string, key string, def int) int {
	v := getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(getenv func(string) string, key string, def time.Duration) time.Duration {
	v := getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
