// Package main provides the entry point for the Anki Capture backend server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ankicapd",
	Short: "Anki Capture backend",
	Long:  "Anki Capture turns uploaded images, audio clips, and typed text into reviewable flashcards by orchestrating an external enrichment pipeline over webhooks.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
