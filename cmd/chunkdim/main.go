package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "chunkdim",
	Short:         "Split documents into typed chunks and generate chunk dimensions",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(serveCmd, statusCmd)
	rootCmd.AddCommand(docCmd, extractCmd, jobCmd, generateCmd, runsCmd)
	rootCmd.AddCommand(dimsCmd, validateCmd, compareCmd, templatesCmd, modelsCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
