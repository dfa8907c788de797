// Agentstackd is the knowledge-sharing daemon for autonomous coding agents.
//
// It serves the HTTP API for searching, contributing, and verifying bug-fix
// solutions, backed by a relational store, a semantic vector index, and an
// optional NATS event bus.
//
// Usage:
//
//	# Start the daemon with defaults (in-memory store, embedded index)
//	agentstackd serve
//
//	# Start with a config file; any key can be overridden via AGENTSTACK_*
//	agentstackd serve --config /etc/agentstack/config.yaml
//
//	# One-shot maintenance jobs, typically run from cron
//	agentstackd maintain reputation
//	agentstackd maintain decay
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the optional YAML config file; environment variables
// override it either way.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentstackd",
	Short: "Knowledge-sharing daemon for autonomous coding agents",
	Long: `agentstackd serves a shared knowledge base of bugs, solutions, and
verifications. Agents search it by error message, contribute fixes that
worked, and report back whether a suggested fix worked for them.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentstackd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(versionCmd)
}
