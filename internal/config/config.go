package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the phrasetracker server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Jobs     JobsConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Backend         string // memory | postgres
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider          string
	InferenceTimeout  time.Duration
	Temperature       float64
	MaxRetryTime      time.Duration
	RequestsPerSecond float64
	Burst             int
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

// JobsConfig controls how classification jobs are queued, paced and retained.
type JobsConfig struct {
	QueueBackend    string // memory | redis
	ChunkSize       int
	WaveSize        int
	WaveDelay       time.Duration
	Workers         int
	QueueSize       int
	TTL             time.Duration
	JanitorInterval time.Duration
	AssumedDuration time.Duration
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	// APIKeys is empty when authentication is disabled.
	APIKeys            []APIKey
	RateLimitPerMinute int
}

// APIKeyPrefixLen is the number of leading key characters stored in clear
// so that a request is compared only against hashes sharing its prefix.
const APIKeyPrefixLen = 8

// APIKey is one configured client key.
type APIKey struct {
	Name   string
	Prefix string
	Hash   string
}

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	apiKeys, err := parseAPIKeys(os.Getenv("API_KEYS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PHRASETRACKER_PORT", 8080),
			Env:  envString("PHRASETRACKER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Backend:         envString("STORE_BACKEND", "memory"),
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:          os.Getenv("AI_PROVIDER"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Temperature:       envFloat("AI_TEMPERATURE", 0.1),
			MaxRetryTime:      envDurationSecs("AI_MAX_RETRY_SECS", 30*time.Second),
			RequestsPerSecond: envFloat("AI_REQUESTS_PER_SECOND", 0),
			Burst:             envInt("AI_BURST", 5),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Jobs: JobsConfig{
			QueueBackend:    envString("QUEUE_BACKEND", "memory"),
			ChunkSize:       envInt("JOB_CHUNK_SIZE", 25),
			WaveSize:        envInt("JOB_WAVE_SIZE", 5),
			WaveDelay:       envDuration("JOB_WAVE_DELAY", time.Second),
			Workers:         envInt("JOB_WORKERS", 5),
			QueueSize:       envInt("JOB_QUEUE_SIZE", 100),
			TTL:             envDuration("JOB_TTL", 24*time.Hour),
			JanitorInterval: envDuration("JOB_JANITOR_INTERVAL", 10*time.Minute),
			AssumedDuration: envDuration("TRANSCRIPT_ASSUMED_DURATION", 30*time.Minute),
			ShutdownTimeout: envDuration("JOB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			APIKeys:            apiKeys,
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Backend {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, postgres; got %q", c.Database.Backend)
	}

	switch c.Jobs.QueueBackend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when QUEUE_BACKEND is redis")
		}
	default:
		return fmt.Errorf("QUEUE_BACKEND must be one of memory, redis; got %q", c.Jobs.QueueBackend)
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	for name, base := range map[string]string{
		"OLLAMA_BASE_URL": c.AI.Ollama.BaseURL,
		"VLLM_BASE_URL":   c.AI.VLLM.BaseURL,
		"OPENAI_BASE_URL": c.AI.OpenAI.BaseURL,
	} {
		if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, base)
		}
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("AI_TEMPERATURE must be between 0 and 2, got %v", c.AI.Temperature)
	}

	if c.Jobs.ChunkSize < 1 {
		return fmt.Errorf("JOB_CHUNK_SIZE must be at least 1, got %d", c.Jobs.ChunkSize)
	}
	if c.Jobs.WaveSize < 1 {
		return fmt.Errorf("JOB_WAVE_SIZE must be at least 1, got %d", c.Jobs.WaveSize)
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOB_WORKERS must be at least 1, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueSize < 1 {
		return fmt.Errorf("JOB_QUEUE_SIZE must be at least 1, got %d", c.Jobs.QueueSize)
	}
	if c.Jobs.WaveDelay < 0 {
		return fmt.Errorf("JOB_WAVE_DELAY must not be negative, got %s", c.Jobs.WaveDelay)
	}

	return nil
}

// parseAPIKeys parses "name:prefix:hash,...". bcrypt hashes contain no
// commas or colons.
func parseAPIKeys(raw string) ([]APIKey, error) {
	var keys []APIKey
	if strings.TrimSpace(raw) == "" {
		return keys, nil
	}
	seen := make(map[string]bool)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, ":")
		prefix, hash, ok2 := strings.Cut(rest, ":")
		if !ok || !ok2 || name == "" || hash == "" {
			return nil, fmt.Errorf("API_KEYS entry %q must have the form name:prefix:bcrypt-hash", entry)
		}
		if len(prefix) != APIKeyPrefixLen {
			return nil, fmt.Errorf("API_KEYS entry %q: prefix must be %d characters, got %d", name, APIKeyPrefixLen, len(prefix))
		}
		if seen[name] {
			return nil, fmt.Errorf("API_KEYS: duplicate key name %q", name)
		}
		seen[name] = true
		keys = append(keys, APIKey{Name: name, Prefix: prefix, Hash: hash})
	}
	return keys, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
