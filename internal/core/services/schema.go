package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/core/ports/driven"
	"github.com/custodia-labs/docrag/internal/core/ports/driving"
	"github.com/custodia-labs/docrag/internal/logger"
)

// Ensure SchemaInferrer implements the interface.
var _ driving.SchemaService = (*SchemaInferrer)(nil)

// SchemaInferrer asks a generation provider for a graph schema.
// Every failure is absorbed into the fallback schema.
type SchemaInferrer struct {
	registry *ProviderRegistry
	prompts  driven.PromptStore
	retry    RetryPolicy
	now      func() time.Time
}

// NewSchemaInferrer creates a schema inferrer. prompts may be nil.
func NewSchemaInferrer(registry *ProviderRegistry, prompts driven.PromptStore, retry RetryPolicy) *SchemaInferrer {
	return &SchemaInferrer{
		registry: registry,
		prompts:  prompts,
		retry:    retry,
		now:      time.Now,
	}
}

// Infer suggests node labels and relationship types for a sample of req.Text.
func (s *SchemaInferrer) Infer(ctx context.Context, req domain.SchemaRequest) domain.SchemaInference {
	start := s.now()
	sample, info := SampleText(req.Text, req.SamplePercentage, req.MaxSampleLength)

	result, err := s.infer(ctx, sample, req.Provider)
	if err != nil {
		logger.Warn("Schema inference failed, using fallback schema: %v", err)
		result = domain.FallbackSchema(err.Error())
	}
	result.Sample = info
	result.ProcessingTimeMS = float64(s.now().Sub(start).Microseconds()) / 1000
	return result
}

func (s *SchemaInferrer) infer(ctx context.Context, sample string, override *domain.ProviderOverride) (domain.SchemaInference, error) {
	if strings.TrimSpace(sample) == "" {
		return domain.SchemaInference{}, errors.New("no text to analyse")
	}

	client, err := s.registry.ResolveGenerationDynamic(override)
	if err != nil {
		return domain.SchemaInference{}, err
	}

	prompt := strings.ReplaceAll(loadPrompt(s.prompts, driven.PromptSchema), driven.PlaceholderText, sample)

	var reply string
	attempts, err := s.retry.do(ctx, client.Provider, "schema", func(ctx context.Context) error {
		var err error
		reply, err = client.Generate(ctx, prompt, driven.GenerateOptions{Temperature: 0})
		return err
	})
	if err != nil {
		return domain.SchemaInference{}, &domain.ProviderError{Provider: client.Provider, Op: "schema", Attempts: attempts, Err: err}
	}

	labels, rels, err := parseSchemaReply(reply)
	if err != nil {
		return domain.SchemaInference{}, err
	}
	return domain.SchemaInference{
		NodeLabels:        labels,
		RelationshipTypes: rels,
		Source:            domain.SchemaSourceLLM,
		ModelUsed:         client.ModelName(),
	}, nil
}

// SampleText cuts the analysed sample out of text.
//
// MaxSampleLength wins when both limits are set. A percentage sample is
// never shorter than domain.MinSampleLength runes. With neither set the
// first domain.DefaultSampleLength runes are used. Out-of-range values are
// clamped; request validation rejects them before they get here.
func SampleText(text string, percentage *float64, maxLength *int) (string, domain.SampleInfo) {
	runes := []rune(text)
	total := len(runes)
	info := domain.SampleInfo{TotalChars: total}

	var n int
	switch {
	case maxLength != nil:
		n = clampInt(*maxLength, domain.MinSampleLength, domain.MaxSampleLength)
		info.MaxSampleLength = &n
	case percentage != nil:
		p := math.Min(math.Max(*percentage, 0), 100)
		info.SamplePercentage = &p
		n = int(math.Ceil(float64(total) * p / 100))
		if n < domain.MinSampleLength {
			n = domain.MinSampleLength
		}
	default:
		n = domain.DefaultSampleLength
		info.MaxSampleLength = &n
	}

	if n > total {
		n = total
	}
	info.SampleChars = n
	return string(runes[:n]), info
}

type schemaReply struct {
	NodeLabels        []string `json:"node_labels"`
	RelationshipTypes []string `json:"relationship_types"`
}

// parseSchemaReply extracts the JSON object from a model reply.
// Models often wrap the object in prose or code fences.
func parseSchemaReply(reply string) ([]string, []string, error) {
	first := strings.Index(reply, "{")
	last := strings.LastIndex(reply, "}")
	if first < 0 || last <= first {
		return nil, nil, errors.New("model reply contains no JSON object")
	}

	var parsed schemaReply
	if err := json.Unmarshal([]byte(reply[first:last+1]), &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse model reply: %w", err)
	}

	labels := dedupe(parsed.NodeLabels)
	rels := dedupe(parsed.RelationshipTypes)
	if len(labels) == 0 && len(rels) == 0 {
		return nil, nil, errors.New("model returned an empty schema")
	}
	return labels, rels, nil
}

// dedupe trims values and drops blanks and repeats, keeping first occurrences.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// loadPrompt reads a template from the store, falling back to the built-in one.
func loadPrompt(store driven.PromptStore, name string) string {
	if store != nil {
		if p, err := store.Load(name); err == nil && p != "" {
			return p
		}
	}
	return driven.DefaultPrompt(name)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
