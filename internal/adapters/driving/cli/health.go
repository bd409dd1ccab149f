package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docrag/internal/app"
	"github.com/custodia-labs/docrag/internal/core/domain"
)

var healthJSON bool

var errUnavailable = errors.New("docrag is unavailable")

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check provider and index health",
	Long: `Embeds a short test string with the default embedding provider and inspects
the chunk store and vector index. Exits non-zero when unavailable.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.App) error {
		report := a.Retrieval.HealthCheck(cmd.Context(), nil)

		if healthJSON {
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			printHealth(newPrinter(cmd.OutOrStdout()), report)
		}

		if report.Status == domain.HealthUnavailable {
			return errUnavailable
		}
		return nil
	})
}

func printHealth(p *printer, r domain.HealthReport) {
	p.printf("Status: %s\n\n", p.status(string(r.Status)))

	p.heading("Embedding provider")
	p.printf("  %s (%s): %s\n", r.Provider.Name, r.Provider.Model, p.status(string(r.Provider.Status)))
	if r.Provider.Dimensions > 0 {
		p.printf("  dimensions: %d\n", r.Provider.Dimensions)
	}
	if r.Provider.Error != "" {
		p.printf("  %s\n", p.muted(r.Provider.Error))
	}

	p.heading("Store")
	p.printf("  %s\n", p.status(string(r.Store.Status)))
	p.printf("  index %s exists: %t", r.Store.IndexName, r.Store.IndexExists)
	if r.Store.IndexDimensions > 0 {
		p.printf(" (%d dimensions)", r.Store.IndexDimensions)
	}
	p.printf("\n  chunks: %d\n", r.Store.ChunkCount)
	if r.Store.Error != "" {
		p.printf("  %s\n", p.muted(r.Store.Error))
	}
}
