package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderGemini is the Google Gemini API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderGemini:
		return true
	default:
		return false
	}
}

// Supports reports whether the provider offers the given role.
// Anthropic and Gemini serve generation only.
func (p AIProvider) Supports(role ProviderRole) bool {
	for _, candidate := range ProvidersFor(role) {
		if candidate == p {
			return true
		}
	}
	return false
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic || p == AIProviderGemini
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderGemini:
		return "Google Gemini (cloud)"
	default:
		return unknownDescription
	}
}

// ProviderRole is the capability a provider is resolved for.
type ProviderRole string

// Provider roles.
const (
	RoleEmbedding  ProviderRole = "embedding"
	RoleGeneration ProviderRole = "generation"
)

// ProvidersFor returns the providers that implement a role.
func ProvidersFor(role ProviderRole) []AIProvider {
	switch role {
	case RoleEmbedding:
		return AllEmbeddingProviders()
	case RoleGeneration:
		return AllLLMProviders()
	default:
		return nil
	}
}

func providerNames(providers []AIProvider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	return names
}

// ProviderConfig is the immutable configuration a client is built from.
type ProviderConfig struct {
	// Role is the capability this client serves.
	Role ProviderRole

	// Name is the provider kind.
	Name AIProvider

	// Model is the model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the credential for cloud providers.
	APIKey string

	// Dimensions is the embedding width; 0 uses the known model default.
	Dimensions int

	// Timeout bounds a single upstream request.
	Timeout time.Duration
}

// IsConfigured returns true if the provider is known and has its credential.
func (c ProviderConfig) IsConfigured() bool {
	if !c.Name.IsValid() {
		return false
	}
	if c.Name.RequiresAPIKey() && c.APIKey == "" {
		return false
	}
	return true
}

// ProviderOverride is a per-request provider selection.
type ProviderOverride struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// IsZero returns true when nothing is overridden.
func (o *ProviderOverride) IsZero() bool {
	return o == nil || (o.Provider == "" && o.Model == "")
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
		AIProviderGemini,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "qwen3:8b",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
		AIProviderGemini:    "gemini-2.0-flash-exp",
	}
}

// DefaultEmbeddingDimensions is used when the model is not in the table.
const DefaultEmbeddingDimensions = 768

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// DimensionsFor returns the known width of a model, or the default.
func DimensionsFor(model string) int {
	if d, ok := EmbeddingDimensions()[model]; ok {
		return d
	}
	return DefaultEmbeddingDimensions
}

// KnownLLMModels lists the generation models offered for the cloud providers.
// Local providers report their models at runtime instead.
func KnownLLMModels() map[AIProvider][]string {
	return map[AIProvider][]string{
		AIProviderOpenAI:    {"gpt-4o-mini", "gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"},
		AIProviderAnthropic: {"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest", "claude-3-opus-latest"},
		AIProviderGemini:    {"gemini-2.0-flash-exp", "gemini-1.5-flash", "gemini-1.5-pro"},
	}
}

// ModelCatalog lists the models a provider offers.
type ModelCatalog struct {
	Provider AIProvider `json:"provider"`
	Models   []string   `json:"models"`
	Default  string     `json:"default"`
}

// ProviderStatus describes whether a provider can be resolved.
type ProviderStatus struct {
	Name        AIProvider `json:"name"`
	Description string     `json:"description"`
	Model       string     `json:"model"`
	Configured  bool       `json:"configured"`
	Default     bool       `json:"default"`
}
