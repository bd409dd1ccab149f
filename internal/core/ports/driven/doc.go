// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EmbeddingService, LLMService: provider clients built by a ProviderFactory
//   - ExtractorRegistry: file to text
//   - VectorIndex: vector storage and similarity search
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ChunkStore: without it ingestion completes in degraded mode and
//     retrieval reports the store as unavailable.
//   - EmbeddingCache: without it every text is sent to the provider.
//   - PromptStore: without it built-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
