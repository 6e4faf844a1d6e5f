package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var policyPath string

var rootCmd = &cobra.Command{
	Use:   "triagekit",
	Short: "Event-driven issue triage and auto-fix bot",
	Long: `triagekit watches a repository's issues, classifies them with an LLM,
generates remediation plans, and opens pull requests for fixes that pass
its safety gate.

Configuration comes from environment variables (TRIAGEKIT_GITHUB_TOKEN,
ANTHROPIC_API_KEY, TRIAGEKIT_BOT_NAME, ...) plus an optional YAML policy
file given with --policy.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyPath, "policy", "", "path to a YAML policy file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
