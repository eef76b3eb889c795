package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor = os.Getenv("NO_COLOR") != ""

var rootCmd = &cobra.Command{
	Use:   "sitecraft",
	Short: "Generate small business websites section by section",
	Long: `sitecraft plans a website from a short business description, generates
each section with a language model (falling back to built-in templates),
and lets you refine sections with plain-language chat instructions.

Run "sitecraft start" to launch the server, then use the other commands
against it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", noColor, "disable colored output")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, mcpCmd)
	rootCmd.AddCommand(analyzeCmd, generateCmd, sessionsCmd, filesCmd, chatCmd, downloadCmd, watchCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
