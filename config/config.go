package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for bookrag.
type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" validate:"oneof=openai gemini ollama mock"`
	Model     string        `yaml:"model" validate:"required"`
	APIKeyEnv string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL   string        `yaml:"base_url"`    // OpenAI-compatible or Ollama endpoint
	Dimension int           `yaml:"dimension" validate:"gt=0"`
	CacheSize int           `yaml:"cache_size" validate:"gte=0"` // 0 disables the query embedding cache
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// IndexConfig holds corpus index configuration.
type IndexConfig struct {
	Backend      string       `yaml:"backend" validate:"oneof=bolt qdrant memory"`
	Includes     []string     `yaml:"includes"`
	Excludes     []string     `yaml:"excludes"`
	ChunkTokens  int          `yaml:"chunk_tokens" validate:"gt=0"`
	ChunkOverlap int          `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkTokens"`
	BatchSize    int          `yaml:"batch_size" validate:"gt=0"`
	Qdrant       QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds connection settings for the Qdrant backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Collection string `yaml:"collection"`
	UseTLS     bool   `yaml:"use_tls"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK                int           `yaml:"top_k" validate:"gt=0,ltefield=MaxTopK"`
	MaxTopK             int           `yaml:"max_top_k" validate:"gt=0"`
	MinFragmentChars    int           `yaml:"min_fragment_chars" validate:"gt=0"`
	FragmentConcurrency int           `yaml:"fragment_concurrency" validate:"gt=0"`
	CallTimeout         time.Duration `yaml:"call_timeout" validate:"gt=0"`
}

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=memory redis"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	KeyPrefix   string `yaml:"key_prefix"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
	File   string `yaml:"file"` // optional rotating log file
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:  "gemini",
			Model:     "models/embedding-001",
			APIKeyEnv: "GEMINI_API_KEY",
			Dimension: 768,
			CacheSize: 256,
			CacheTTL:  10 * time.Minute,
		},
		Index: IndexConfig{
			Backend:      "bolt",
			Includes:     []string{"**/*.md", "**/*.txt", "**/*.mdx"},
			Excludes:     []string{"**/node_modules/**", "**/.git/**", "**/.bookrag/**", "**/build/**"},
			ChunkTokens:  400,
			ChunkOverlap: 50,
			BatchSize:    64,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				APIKeyEnv:  "QDRANT_API_KEY",
				Collection: "book_content",
			},
		},
		Retrieve: RetrieveConfig{
			TopK:                3,
			MaxTopK:             50,
			MinFragmentChars:    10,
			FragmentConcurrency: 4,
			CallTimeout:         10 * time.Second,
		},
		Session: SessionConfig{
			Backend:       "memory",
			Timeout:       30 * time.Minute,
			SweepInterval: time.Minute,
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				PasswordEnv: "REDIS_PASSWORD",
				KeyPrefix:   "bookrag:session:",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file and validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for bookrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "bookrag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".bookrag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LoadEnv loads a .env file from dir into the process environment. A missing
// file is not an error; variables already set are left untouched.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

var validate = validator.New()

// Validate checks field constraints declared on the config structs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexDBPath returns the path to the bbolt corpus index.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, ".bookrag", "index.db")
}

// EnsureDataDir ensures the .bookrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".bookrag"), 0755)
}
