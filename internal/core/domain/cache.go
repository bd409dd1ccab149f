package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// TextStats summarises a document's text.
type TextStats struct {
	TotalChars int `json:"total_chars"`
	TotalWords int `json:"total_words"`
	TotalLines int `json:"total_lines"`
}

// ComputeTextStats counts runes, whitespace separated words and lines.
// Empty text has zero lines.
func ComputeTextStats(text string) TextStats {
	stats := TextStats{
		TotalChars: utf8.RuneCountInString(text),
		TotalWords: len(strings.Fields(text)),
	}
	if text != "" {
		stats.TotalLines = strings.Count(text, "\n") + 1
	}
	return stats
}

// LLMConfig is the generation provider a cached document should be analysed with.
type LLMConfig struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Override converts the config into a per-request provider override.
func (c *LLMConfig) Override() *ProviderOverride {
	if c == nil || (c.Provider == "" && c.Model == "") {
		return nil
	}
	return &ProviderOverride{Provider: c.Provider, Model: c.Model}
}

// CachedDocument is an uploaded document staged for schema inference.
type CachedDocument struct {
	Key          string
	Filename     string
	TextContent  string
	FileType     FileType
	SizeBytes    int
	TextStats    TextStats
	LLMConfig    *LLMConfig
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
}

// IsExpired reports whether now is past the entry's expiry.
func (d *CachedDocument) IsExpired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// Info returns the entry's metadata without its text.
func (d *CachedDocument) Info() CachedDocumentInfo {
	return CachedDocumentInfo{
		Key:          d.Key,
		Filename:     d.Filename,
		FileType:     d.FileType,
		SizeBytes:    d.SizeBytes,
		TextStats:    d.TextStats,
		LLMConfig:    d.LLMConfig,
		CreatedAt:    d.CreatedAt,
		ExpiresAt:    d.ExpiresAt,
		LastAccessed: d.LastAccessed,
	}
}

// CachedDocumentInfo is the listing view of a cached document.
// It deliberately has no text field.
type CachedDocumentInfo struct {
	Key          string     `json:"key"`
	Filename     string     `json:"filename"`
	FileType     FileType   `json:"file_type"`
	SizeBytes    int        `json:"file_size_bytes"`
	TextStats    TextStats  `json:"text_stats"`
	LLMConfig    *LLMConfig `json:"llm_config,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	LastAccessed time.Time  `json:"last_accessed"`
}

// CacheStats describes the cache as a whole.
type CacheStats struct {
	TotalDocuments         int     `json:"total_documents"`
	MaxDocuments           int     `json:"max_documents"`
	MemoryUsageMB          float64 `json:"memory_usage_mb"`
	TotalFileSizeMB        float64 `json:"total_file_size_mb"`
	TTLMinutes             int     `json:"ttl_minutes"`
	CleanupIntervalMinutes int     `json:"cleanup_interval_minutes"`
}
