package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "whatnow",
	Short: "Context-aware task labeling and recommendation service",
	Long: `whatnow labels your tasks with an LLM and recommends what to do
right now based on how you describe your current situation.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the whatnow server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the whatnow version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("whatnow version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
