package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docrag/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/docrag/internal/app"
)

var (
	serveAddr    string
	serveMCPAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the ingestion, query and schema inference API. With --mcp-addr
the MCP streamable HTTP transport is served alongside it.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().StringVar(&serveMCPAddr, "mcp-addr", "", "also serve MCP over HTTP on this address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(a *app.App) error {
		addr := serveAddr
		if addr == "" {
			addr = a.Config.Server.Addr
		}

		api, err := httpapi.NewServer(&httpapi.Ports{
			Ingest:     a.Ingest,
			Query:      a.Query,
			Retrieval:  a.Retrieval,
			Schema:     a.Schema,
			Cache:      a.Cache,
			Providers:  a.Providers,
			Extractors: a.Extractors,
			Admin:      a.Admin,
		}, httpapi.Config{
			Addr:           addr,
			MaxUploadBytes: a.Config.MaxDocumentBytes(),
			Version:        version,
		})
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		a.Start(ctx)

		g.Go(func() error { return api.Run(ctx) })
		if serveMCPAddr != "" {
			mcpServer, err := newMCPServer(a)
			if err != nil {
				return err
			}
			g.Go(func() error { return mcpServer.RunHTTP(ctx, serveMCPAddr) })
		}
		return g.Wait()
	})
}
