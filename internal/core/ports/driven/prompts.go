package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations return the built-in default.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used throughout the application.
const (
	// PromptAnswer renders the grounded answer prompt.
	// The template uses the {{context}} and {{question}} placeholders.
	PromptAnswer = "answer"

	// PromptSchema asks for node labels and relationship types as JSON.
	// The template uses the {{text}} placeholder for the text sample.
	PromptSchema = "schema"

	// PromptSystem is the system instruction sent with every generation.
	PromptSystem = "system"
)

// DefaultPrompts contains the built-in templates.
// They are used when no prompt directory is configured and as the initial
// content written to a new one.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var DefaultPrompts = map[string]string{
	PromptAnswer: `You are an assistant that answers questions using the documents provided.

CONTEXT:
{{context}}

QUESTION: {{question}}

INSTRUCTIONS:
- Use only the information in the context above to answer
- If the information is not in the context, say that you do not have enough information
- Be precise and concise
- Cite the document you used when relevant

ANSWER:`,

	PromptSchema: `You are an expert data modeler and graph architect. Analyse the text below and propose a generic, yet effective, graph schema. Identify the main types of entities (as node labels) and the types of relationships that connect them.

Return a single valid JSON object with two keys:
1. "node_labels": a list of strings naming entity types (e.g. "Person", "Company").
2. "relationship_types": a list of strings naming relationship types (e.g. "WORKS_AT", "INVESTED_IN").

Do not extract the actual data, only the schema.

Text to analyse:
---
{{text}}
---

JSON Schema:`,

	PromptSystem: `You answer questions about the user's own documents. Only state facts that appear in the context you are given.`,
}

// Placeholders substituted into prompt templates. Anything else in a
// template, including a literal %, is sent as written.
const (
	PlaceholderContext  = "{{context}}"
	PlaceholderQuestion = "{{question}}"
	PlaceholderText     = "{{text}}"
)

// DefaultPrompt returns the built-in template for name, or "" if unknown.
func DefaultPrompt(name string) string {
	return DefaultPrompts[name]
}
