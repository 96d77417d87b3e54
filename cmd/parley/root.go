package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley routes each message of a conversation to one specialized handler",
	Long: `Parley is a conversational orchestrator. A router classifies every user message
and dispatches it to exactly one handler (StoryTeller, StoryGuider, CharacterMaker by default),
keeping the dialogue history per session.

Running parley without a subcommand starts an interactive chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML file with the handler catalog and settings")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	addChatFlags(rootCmd)
}
