package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/docrag/internal/app"
	"github.com/custodia-labs/docrag/internal/core/domain"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List AI providers and whether they are configured",
	Args:  cobra.NoArgs,
	RunE:  runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

func runProviders(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.App) error {
		p := newPrinter(cmd.OutOrStdout())
		for _, role := range []domain.ProviderRole{domain.RoleEmbedding, domain.RoleGeneration} {
			p.heading(string(role))
			for _, s := range a.Providers.Providers(role) {
				state := "configured"
				if !s.Configured {
					state = "missing credential"
				}
				marker := " "
				if s.Default {
					marker = "*"
				}
				p.printf(" %s %-10s %-28s %s\n", marker, s.Name, s.Model, p.muted(state))
			}
			p.printf("\n")
		}
		return nil
	})
}
