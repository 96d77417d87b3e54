package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List the handlers the router can select",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return cli.ListHandlers(configPath, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(handlersCmd)
}
