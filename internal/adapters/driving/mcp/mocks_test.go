package mcp

import (
	"context"

	"github.com/custodia-labs/docrag/internal/core/domain"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	result   *domain.QueryResult
	err      error
	question string
	opts     domain.QueryOptions
}

func (m *mockQueryService) Query(_ context.Context, question string, opts domain.QueryOptions) (*domain.QueryResult, error) {
	m.question = question
	m.opts = opts
	return m.result, m.err
}

// mockRetrievalService is a mock implementation of driving.RetrievalService.
type mockRetrievalService struct {
	sources []domain.RetrievedSource
	report  domain.HealthReport
	err     error
	topK    int
}

func (m *mockRetrievalService) Retrieve(
	_ context.Context,
	_ string,
	topK int,
	_ *domain.ProviderOverride,
) ([]domain.RetrievedSource, error) {
	m.topK = topK
	return m.sources, m.err
}

func (m *mockRetrievalService) HealthCheck(context.Context, *domain.ProviderOverride) domain.HealthReport {
	return m.report
}

// mockSchemaService is a mock implementation of driving.SchemaService.
type mockSchemaService struct {
	got domain.SchemaRequest
}

func (m *mockSchemaService) Infer(_ context.Context, req domain.SchemaRequest) domain.SchemaInference {
	m.got = req
	return domain.SchemaInference{
		NodeLabels:        []string{"Person"},
		RelationshipTypes: []string{"KNOWS"},
		Source:            domain.SchemaSourceLLM,
	}
}
