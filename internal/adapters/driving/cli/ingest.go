package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docrag/internal/app"
	"github.com/custodia-labs/docrag/internal/connectors/filesystem"
	"github.com/custodia-labs/docrag/internal/core/domain"
)

var (
	ingestProvider    string
	ingestModel       string
	ingestInferSchema bool
	ingestJSON        bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the index",
	Long: `Extracts text from each file, splits it into chunks, embeds the chunks
and writes them to the chunk store and vector index. Directories are
walked recursively, skipping hidden entries and unsupported files.

Supported formats: .txt, .md, .html, .pdf, .docx, .xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestProvider, "provider", "", "embedding provider override")
	ingestCmd.Flags().StringVar(&ingestModel, "model", "", "embedding model override")
	ingestCmd.Flags().BoolVar(&ingestInferSchema, "infer-schema", false, "also suggest a graph schema")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(a *app.App) error {
		var override *domain.ProviderOverride
		if ingestProvider != "" || ingestModel != "" {
			override = &domain.ProviderOverride{Provider: strings.ToLower(ingestProvider), Model: ingestModel}
		}
		if err := a.Providers.Validate(domain.RoleEmbedding, override); err != nil {
			return err
		}

		paths, err := filesystem.Walk(cmd.Context(), args, a.Extractors.Supports)
		if err != nil {
			return err
		}

		p := newPrinter(cmd.OutOrStdout())
		var (
			results []*domain.IngestResult
			failed  []error
		)
		for _, path := range paths {
			res, err := ingestFile(cmd, a, path, override)
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", path, err))
				if !ingestJSON {
					p.printf("%s %s: %v\n", p.status("failed"), path, err)
				}
				continue
			}
			results = append(results, res)
			if !ingestJSON {
				printIngest(p, res)
			}
		}

		if ingestJSON {
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
		}
		return errors.Join(failed...)
	})
}

func ingestFile(cmd *cobra.Command, a *app.App, path string, override *domain.ProviderOverride) (*domain.IngestResult, error) {
	name := filepath.Base(path)
	if !a.Extractors.Supports(name) {
		return nil, fmt.Errorf("%w: %s (supported: %s)", domain.ErrUnsupportedFileType,
			name, strings.Join(a.Extractors.Extensions(), ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if limit := a.Config.MaxDocumentBytes(); info.Size() > limit {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", domain.ErrDocumentTooLarge, info.Size(), limit)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.Ingest.Ingest(cmd.Context(), domain.IngestRequest{
		Filename:          name,
		Content:           content,
		EmbeddingProvider: override,
		InferSchema:       ingestInferSchema,
	})
}

func printIngest(p *printer, res *domain.IngestResult) {
	p.printf("%s %s: %d chunks  %s\n", p.status(res.Status()), res.Filename, res.ChunksCreated, p.muted(res.DocumentID))
	if res.Degraded {
		p.printf("      %s\n", p.muted("not persisted: "+res.DegradedReason))
	}
	if res.Schema != nil {
		p.printf("      nodes: %s\n", strings.Join(res.Schema.NodeLabels, ", "))
		p.printf("      relationships: %s\n", strings.Join(res.Schema.RelationshipTypes, ", "))
	}
}
