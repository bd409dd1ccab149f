// Package connectors discovers documents in external sources for ingestion.
package connectors
