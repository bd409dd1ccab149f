// Package config loads docrag configuration.
//
// Precedence, lowest first: built-in defaults, the config file
// (docrag.toml/yaml/json in the working directory or ~/.docrag), a .env file,
// then environment variables prefixed DOCRAG_ with dots replaced by
// underscores (DOCRAG_CACHE_TTL_MINUTES). Provider keys also honour the
// conventional OPENAI_API_KEY, ANTHROPIC_API_KEY and GEMINI_API_KEY
// (or GOOGLE_API_KEY) variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// EnvPrefix is the prefix of every docrag environment variable.
const EnvPrefix = "DOCRAG"

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
	Providers  ProvidersConfig  `mapstructure:"providers" toml:"providers"`
	Ollama     OllamaConfig     `mapstructure:"ollama" toml:"ollama"`
	OpenAI     OpenAIConfig     `mapstructure:"openai" toml:"openai"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic" toml:"anthropic"`
	Gemini     GeminiConfig     `mapstructure:"gemini" toml:"gemini"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" toml:"embedding"`
	Redis      RedisConfig      `mapstructure:"redis" toml:"redis"`
	Store      StoreConfig      `mapstructure:"store" toml:"store"`
	Vector     VectorConfig     `mapstructure:"vector" toml:"vector"`
	Qdrant     QdrantConfig     `mapstructure:"qdrant" toml:"qdrant"`
	Chromem    ChromemConfig    `mapstructure:"chromem" toml:"chromem"`
	Chunker    ChunkerConfig    `mapstructure:"chunker" toml:"chunker"`
	Cache      CacheConfig      `mapstructure:"cache" toml:"cache"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval" toml:"retrieval"`
	Generation GenerationConfig `mapstructure:"generation" toml:"generation"`
	Prompts    PromptsConfig    `mapstructure:"prompts" toml:"prompts"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr" toml:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// ProvidersConfig selects the default provider per role and the call budget.
type ProvidersConfig struct {
	Embedding         string  `mapstructure:"embedding" toml:"embedding"`
	Generation        string  `mapstructure:"generation" toml:"generation"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	MaxRetries        int     `mapstructure:"max_retries" toml:"max_retries"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"`
}

// OllamaConfig configures the local runtime.
type OllamaConfig struct {
	BaseURL        string `mapstructure:"base_url" toml:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model" toml:"embedding_model"`
	LLMModel       string `mapstructure:"llm_model" toml:"llm_model"`
}

// OpenAIConfig configures the OpenAI API.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" toml:"api_key"`
	BaseURL        string `mapstructure:"base_url" toml:"base_url"`
	EmbeddingModel string `mapstructure:"embedding_model" toml:"embedding_model"`
	LLMModel       string `mapstructure:"llm_model" toml:"llm_model"`
}

// AnthropicConfig configures the Anthropic API.
type AnthropicConfig struct {
	APIKey   string `mapstructure:"api_key" toml:"api_key"`
	BaseURL  string `mapstructure:"base_url" toml:"base_url"`
	LLMModel string `mapstructure:"llm_model" toml:"llm_model"`
}

// GeminiConfig configures the Google Gemini API.
type GeminiConfig struct {
	APIKey   string `mapstructure:"api_key" toml:"api_key"`
	BaseURL  string `mapstructure:"base_url" toml:"base_url"`
	LLMModel string `mapstructure:"llm_model" toml:"llm_model"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	// Dimensions pins the index width. 0 uses the model's known width.
	Dimensions int `mapstructure:"dimensions" toml:"dimensions"`
	// Fallback is "none" or "zero".
	Fallback string `mapstructure:"fallback" toml:"fallback"`
	// Cache is "none", "memory" or "redis".
	Cache           string `mapstructure:"cache" toml:"cache"`
	CacheSize       int    `mapstructure:"cache_size" toml:"cache_size"`
	CacheTTLMinutes int    `mapstructure:"cache_ttl_minutes" toml:"cache_ttl_minutes"`
}

// RedisConfig configures the Redis embedding cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" toml:"addr"`
	Password string `mapstructure:"password" toml:"password"`
	DB       int    `mapstructure:"db" toml:"db"`
}

// StoreConfig configures the chunk store.
type StoreConfig struct {
	// Enabled toggles the persistence store. When false ingestion runs degraded.
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	// Backend is "sqlite" or "memory". Memory keeps nothing across restarts.
	Backend string `mapstructure:"backend" toml:"backend"`
	DataDir string `mapstructure:"data_dir" toml:"data_dir"`
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	// Backend is "sqlite", "memory", "qdrant" or "chromem".
	Backend   string `mapstructure:"backend" toml:"backend"`
	IndexName string `mapstructure:"index_name" toml:"index_name"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host   string `mapstructure:"host" toml:"host"`
	Port   int    `mapstructure:"port" toml:"port"`
	APIKey string `mapstructure:"api_key" toml:"api_key"`
	UseTLS bool   `mapstructure:"use_tls" toml:"use_tls"`
}

// ChromemConfig configures the embedded chromem database.
type ChromemConfig struct {
	// Path persists the database; empty keeps it in memory.
	Path string `mapstructure:"path" toml:"path"`
}

// ChunkerConfig configures the splitter.
type ChunkerConfig struct {
	Size    int `mapstructure:"size" toml:"size"`
	Overlap int `mapstructure:"overlap" toml:"overlap"`
}

// CacheConfig configures the document cache.
type CacheConfig struct {
	TTLMinutes             int `mapstructure:"ttl_minutes" toml:"ttl_minutes"`
	MaxDocuments           int `mapstructure:"max_documents" toml:"max_documents"`
	MaxDocumentMB          int `mapstructure:"max_document_mb" toml:"max_document_mb"`
	CleanupIntervalMinutes int `mapstructure:"cleanup_interval_minutes" toml:"cleanup_interval_minutes"`
}

// RetrievalConfig configures the retrieval engine.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k" toml:"top_k"`
}

// GenerationConfig configures the generation service.
type GenerationConfig struct {
	MaxContextChars int     `mapstructure:"max_context_chars" toml:"max_context_chars"`
	MaxTokens       int     `mapstructure:"max_tokens" toml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" toml:"temperature"`
	MaxRetries      int     `mapstructure:"max_retries" toml:"max_retries"`
}

// PromptsConfig locates the prompt directory.
type PromptsConfig struct {
	// Dir holds one .txt file per prompt. Empty uses ~/.docrag/prompts.
	Dir string `mapstructure:"dir" toml:"dir"`
	// Watch reloads prompts when files change.
	Watch bool `mapstructure:"watch" toml:"watch"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("providers.embedding", string(domain.AIProviderOllama))
	v.SetDefault("providers.generation", string(domain.AIProviderOllama))
	v.SetDefault("providers.timeout_seconds", 60)
	v.SetDefault("providers.max_retries", 3)
	v.SetDefault("providers.requests_per_second", 0.0)

	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("ollama.embedding_model", domain.DefaultEmbeddingModels()[domain.AIProviderOllama])
	v.SetDefault("ollama.llm_model", domain.DefaultLLMModels()[domain.AIProviderOllama])

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.embedding_model", domain.DefaultEmbeddingModels()[domain.AIProviderOpenAI])
	v.SetDefault("openai.llm_model", domain.DefaultLLMModels()[domain.AIProviderOpenAI])

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.llm_model", domain.DefaultLLMModels()[domain.AIProviderAnthropic])

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.llm_model", domain.DefaultLLMModels()[domain.AIProviderGemini])

	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.fallback", "none")
	v.SetDefault("embedding.cache", "memory")
	v.SetDefault("embedding.cache_size", 4096)
	v.SetDefault("embedding.cache_ttl_minutes", 60)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.data_dir", "")

	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.index_name", "document_embeddings")

	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.use_tls", false)

	v.SetDefault("chromem.path", "")

	v.SetDefault("chunker.size", 1000)
	v.SetDefault("chunker.overlap", 200)

	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("cache.max_documents", 100)
	v.SetDefault("cache.max_document_mb", 50)
	v.SetDefault("cache.cleanup_interval_minutes", 5)

	v.SetDefault("retrieval.top_k", domain.DefaultTopK)

	v.SetDefault("generation.max_context_chars", 6000)
	v.SetDefault("generation.max_tokens", 1000)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_retries", 2)

	v.SetDefault("prompts.dir", "")
	v.SetDefault("prompts.watch", true)
}

// Load reads configuration. An explicit path must exist; without one the
// default locations are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("openai.api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}
	if err := v.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}
	if err := v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("docrag")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".docrag"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.TTLMinutes <= 0 {
		errs = append(errs, errors.New("cache.ttl_minutes must be positive"))
	}
	if c.Cache.MaxDocuments <= 0 {
		errs = append(errs, errors.New("cache.max_documents must be positive"))
	}
	if c.Cache.MaxDocumentMB <= 0 {
		errs = append(errs, errors.New("cache.max_document_mb must be positive"))
	}
	if c.Chunker.Size <= 0 || c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		errs = append(errs, errors.New("chunker.overlap must be in [0, chunker.size)"))
	}
	switch c.Store.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of sqlite, memory", c.Store.Backend))
	}
	switch c.Vector.Backend {
	case "sqlite", "memory", "qdrant", "chromem":
	default:
		errs = append(errs, fmt.Errorf("vector.backend %q is not one of sqlite, memory, qdrant, chromem", c.Vector.Backend))
	}
	switch c.Embedding.Fallback {
	case "none", "zero":
	default:
		errs = append(errs, fmt.Errorf("embedding.fallback %q is not one of none, zero", c.Embedding.Fallback))
	}
	switch c.Embedding.Cache {
	case "none", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("embedding.cache %q is not one of none, memory, redis", c.Embedding.Cache))
	}
	if c.Providers.MaxRetries < 0 || c.Generation.MaxRetries < 0 {
		errs = append(errs, errors.New("retry counts must not be negative"))
	}
	return errors.Join(errs...)
}

// ProviderTimeout bounds one upstream call.
func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.Providers.TimeoutSeconds) * time.Second
}

// CacheTTL is the document cache time-to-live.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// CacheCleanupInterval is the sweep period of the document cache.
func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.Cache.CleanupIntervalMinutes) * time.Minute
}

// MaxDocumentBytes is the largest accepted upload.
func (c *Config) MaxDocumentBytes() int64 {
	return int64(c.Cache.MaxDocumentMB) * 1024 * 1024
}

// ProviderConfig builds the client configuration for a provider and role.
// An empty model selects the configured model for that provider.
func (c *Config) ProviderConfig(role domain.ProviderRole, name domain.AIProvider, model string) domain.ProviderConfig {
	pc := domain.ProviderConfig{
		Role:    role,
		Name:    name,
		Model:   model,
		Timeout: c.ProviderTimeout(),
	}
	switch name {
	case domain.AIProviderOllama:
		pc.BaseURL = c.Ollama.BaseURL
		if pc.Model == "" {
			pc.Model = pick(role, c.Ollama.EmbeddingModel, c.Ollama.LLMModel)
		}
	case domain.AIProviderOpenAI:
		pc.BaseURL = c.OpenAI.BaseURL
		pc.APIKey = c.OpenAI.APIKey
		if pc.Model == "" {
			pc.Model = pick(role, c.OpenAI.EmbeddingModel, c.OpenAI.LLMModel)
		}
	case domain.AIProviderAnthropic:
		pc.BaseURL = c.Anthropic.BaseURL
		pc.APIKey = c.Anthropic.APIKey
		if pc.Model == "" && role == domain.RoleGeneration {
			pc.Model = c.Anthropic.LLMModel
		}
	case domain.AIProviderGemini:
		pc.BaseURL = c.Gemini.BaseURL
		pc.APIKey = c.Gemini.APIKey
		if pc.Model == "" && role == domain.RoleGeneration {
			pc.Model = c.Gemini.LLMModel
		}
	}
	if role == domain.RoleEmbedding {
		pc.Dimensions = c.Embedding.Dimensions
	}
	return pc
}

func pick(role domain.ProviderRole, embedding, generation string) string {
	if role == domain.RoleEmbedding {
		return embedding
	}
	return generation
}

// TOML renders the configuration with secrets redacted.
func (c *Config) TOML() ([]byte, error) {
	redacted := *c
	redacted.OpenAI.APIKey = redact(c.OpenAI.APIKey)
	redacted.Anthropic.APIKey = redact(c.Anthropic.APIKey)
	redacted.Gemini.APIKey = redact(c.Gemini.APIKey)
	redacted.Qdrant.APIKey = redact(c.Qdrant.APIKey)
	redacted.Redis.Password = redact(c.Redis.Password)
	out, err := toml.Marshal(redacted)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return out, nil
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
