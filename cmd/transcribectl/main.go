// Command transcribectl is the operator CLI for the transcription backend:
// submit jobs, watch the queue, and manage the model registry against a
// running instance's HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var flagAPIURL string

var rootCmd = &cobra.Command{
	Use:   "transcribectl",
	Short: "Operate a transcribe-backend instance from the command line",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("transcribectl %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", envOr("TRANSCRIBECTL_API_URL", "http://localhost:8080"), "backend base URL")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
