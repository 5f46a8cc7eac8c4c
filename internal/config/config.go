// Package config handles coach configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/coach/config.yaml, /etc/coach/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "coach", "config.yaml"))
	}

	paths = append(paths, "/etc/coach/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Duration wraps time.Duration so YAML values can be written as
// strings like "30s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all coach configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Model      ModelConfig      `yaml:"model"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelConfig defines the chat completion endpoint.
type ModelConfig struct {
	BaseURL     string  `yaml:"base_url"` // OpenAI-compatible endpoint
	APIKey      string  `yaml:"api_key"`
	Name        string  `yaml:"name"` // e.g. gpt-4o-mini
	Temperature float64 `yaml:"temperature"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	BaseURL    string `yaml:"base_url"` // Ollama-style embedding endpoint
	Model      string `yaml:"model"`    // e.g. nomic-embed-text
	Dimensions int    `yaml:"dimensions"`
}

// MemoryConfig defines both memory tiers and the context assembly policy.
type MemoryConfig struct {
	Redis     RedisConfig     `yaml:"redis"`
	Qdrant    QdrantConfig    `yaml:"qdrant"`
	ShortTerm ShortTermConfig `yaml:"short_term"`
	LongTerm  LongTermConfig  `yaml:"long_term"`

	// ContextBudget is the approximate token budget for assembled
	// context. Entries are dropped oldest-short-term-first, then
	// lowest-similarity-long-term, until the budget is satisfied.
	ContextBudget int `yaml:"context_budget"`
}

// RedisConfig defines the short-term store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QdrantConfig defines the long-term store connection.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"` // gRPC port, default 6334
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

// ShortTermConfig tunes the recency tier.
type ShortTermConfig struct {
	// Window is the maximum number of turns retained per user.
	Window int `yaml:"window"`
	// TTL is how long a turn stays readable after it is written.
	TTL Duration `yaml:"ttl"`
}

// LongTermConfig tunes semantic retrieval.
type LongTermConfig struct {
	// TopK is the maximum number of records retrieved per query.
	TopK int `yaml:"top_k"`
	// MinScore is the similarity floor; records below it are never returned.
	MinScore float32 `yaml:"min_score"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	// MaxRounds bounds model round-trips per turn.
	MaxRounds int `yaml:"max_rounds"`
	// TurnTimeout is the overall per-turn deadline.
	TurnTimeout Duration `yaml:"turn_timeout"`
}

// ProvidersConfig defines the external data providers.
type ProvidersConfig struct {
	Recipe    ProviderConfig `yaml:"recipe"`
	Nutrition ProviderConfig `yaml:"nutrition"`
}

// ProviderConfig defines a single external provider endpoint.
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// GatewayConfig tunes outbound call policy.
type GatewayConfig struct {
	// CallTimeout is the per-call deadline, strictly shorter than the
	// turn deadline.
	CallTimeout Duration `yaml:"call_timeout"`
	// MaxRetries is the retry count after the initial attempt.
	MaxRetries int `yaml:"max_retries"`
	// BackoffBase and BackoffCap bound the exponential backoff.
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffCap  Duration `yaml:"backoff_cap"`
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. BreakerWindow is the sliding window the failures must
	// fall within. BreakerCooldown is how long the circuit stays open
	// before a half-open probe is allowed through.
	BreakerThreshold int      `yaml:"breaker_threshold"`
	BreakerWindow    Duration `yaml:"breaker_window"`
	BreakerCooldown  Duration `yaml:"breaker_cooldown"`
	// CacheTTL is how long successful responses are served from cache.
	// Zero disables caching.
	CacheTTL Duration `yaml:"cache_ttl"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			BaseURL:     "https://api.openai.com/v1",
			Name:        "gpt-4o-mini",
			Temperature: 0.1,
		},
		Embeddings: EmbeddingsConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Memory: MemoryConfig{
			Redis:  RedisConfig{Addr: "localhost:6379"},
			Qdrant: QdrantConfig{Host: "localhost", Port: 6334, Collection: "long_term_memory"},
			ShortTerm: ShortTermConfig{
				Window: 10,
				TTL:    Duration(24 * time.Hour),
			},
			LongTerm: LongTermConfig{
				TopK:     3,
				MinScore: 0.7,
			},
			ContextBudget: 2048,
		},
		Agent: AgentConfig{
			MaxRounds:   5,
			TurnTimeout: Duration(60 * time.Second),
		},
		Gateway: GatewayConfig{
			CallTimeout:      Duration(10 * time.Second),
			MaxRetries:       3,
			BackoffBase:      Duration(250 * time.Millisecond),
			BackoffCap:       Duration(4 * time.Second),
			BreakerThreshold: 5,
			BreakerWindow:    Duration(30 * time.Second),
			BreakerCooldown:  Duration(15 * time.Second),
			CacheTTL:         Duration(5 * time.Minute),
		},
	}
}
