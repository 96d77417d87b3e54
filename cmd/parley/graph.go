package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the routing graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the router and its handlers.
With --session, the handlers that session has reached are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		sessionID, _ := cmd.Flags().GetString("session")
		return cli.PrintGraph(cmd.Context(), configPath, sessionID, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("session", "s", "", "Highlight the handlers reached by this session")
}
