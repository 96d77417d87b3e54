package main

import (
	"os"

	"github.com/aretw0/parley/internal/cli"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts the interactive loop: asks for your name, then routes every message to a handler.
Type /handlers to list them, /history to review the conversation and /exit (or /salir) to leave.

With --session the conversation is persisted in the configured store and resumed on the next run.`,
	RunE: runChat,
}

func addChatFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("session", "s", "", "Session ID to resume or create")
	cmd.Flags().Bool("fresh", false, "Discard the stored history of --session before starting")
	cmd.Flags().Bool("json", false, "Read and write JSON lines instead of text")
	cmd.Flags().Bool("no-greeting", false, "Skip the name prompt and welcome message")
}

func runChat(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	sessionID, _ := cmd.Flags().GetString("session")
	fresh, _ := cmd.Flags().GetBool("fresh")
	jsonMode, _ := cmd.Flags().GetBool("json")
	noGreeting, _ := cmd.Flags().GetBool("no-greeting")

	return cli.RunChat(cli.ChatOptions{
		ConfigPath: configPath,
		SessionID:  sessionID,
		Fresh:      fresh,
		JSON:       jsonMode,
		NoGreeting: noGreeting,
		Debug:      debug,
		In:         os.Stdin,
		Out:        os.Stdout,
	})
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addChatFlags(chatCmd)
}
