package main

import (
	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves POST /api/query behind the X-API-Key header (API_SECRET_KEY), rate limited per client.
Requests carrying a session_id thread their history through the configured store.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		debug, _ := cmd.Flags().GetBool("debug")
		addr, _ := cmd.Flags().GetString("addr")

		return cli.RunServe(cli.ServeOptions{
			ConfigPath: configPath,
			Addr:       addr,
			Debug:      debug,
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", "", "Address to listen on (default from config, :8080)")
}
