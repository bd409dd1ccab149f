package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docrag/internal/app"
	"github.com/custodia-labs/docrag/internal/core/domain"
)

var (
	queryTopK     int
	queryProvider string
	queryModel    string
	queryJSON     bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question from ingested documents",
	Long: `Retrieves the chunks most relevant to the question and asks the
generation provider to answer using only those chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of sources to retrieve (default from config)")
	queryCmd.Flags().StringVar(&queryProvider, "provider", "", "generation provider override")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "generation model override")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output the result as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return domain.NewValidationError("question", "is required")
	}

	return withApp(cmd, func(a *app.App) error {
		opts := domain.QueryOptions{TopK: queryTopK}
		if queryProvider != "" || queryModel != "" {
			opts.Provider = &domain.ProviderOverride{
				Provider: strings.ToLower(queryProvider),
				Model:    queryModel,
			}
		}

		res, err := a.Query.Query(cmd.Context(), question, opts)
		if err != nil {
			return err
		}
		if queryJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printAnswer(newPrinter(cmd.OutOrStdout()), res)
		return nil
	})
}

func printAnswer(p *printer, res *domain.QueryResult) {
	p.heading("Answer")
	p.printf("%s\n\n", p.wrap(res.Answer, 0))

	p.heading("Sources")
	for i, src := range res.Sources {
		p.printf("  [%d] %.3f  %s\n", i+1, src.Score, p.muted(src.ChunkID))
		p.printf("%s\n", p.wrap(truncate(strings.Join(strings.Fields(src.Text), " "), 200), 6))
	}
	p.printf("\n%s\n", p.muted("Answered by "+string(res.ProviderUsed)+" "+res.ModelUsed))
}
