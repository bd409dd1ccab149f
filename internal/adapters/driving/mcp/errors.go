// Package mcp provides an MCP (Model Context Protocol) server adapter for docrag.
// It lets AI assistants ask grounded questions and inspect staged documents.
package mcp

import "errors"

// Errors returned by Ports.Validate.
var (
	ErrMissingQueryService     = errors.New("mcp: query service is required")
	ErrMissingRetrievalService = errors.New("mcp: retrieval service is required")
)
