// Agentsim runs agent/trait/ability simulations.
//
// Usage:
//
//	agentsim run [scenario]       tick a scenario headless
//	agentsim view [scenario]      open the terminal viewer
//	agentsim repl [scenario]      line-oriented command loop
//	agentsim verify <record>...   replay run records and compare digests
//	agentsim validate <path>...   check Lua scenarios
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentsim",
		Short: "Agent/trait/ability simulation engine",
		Long: `agentsim advances a tree of agents in discrete ticks. Every tick
evaluates all abilities against one snapshot, then commits the recorded
effects atomically.

A scenario is either a built-in name (dogs, forage, life) or a path to a
Lua scenario file or directory.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default ./agentsim.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, trace")
	rootCmd.PersistentFlags().Int64("seed", 0, "Seed for random policies and generated scenarios")
	rootCmd.PersistentFlags().String("policy", "", "Ability policy: all, random")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newViewCmd(),
		newReplCmd(),
		newVerifyCmd(),
		newValidateCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentsim %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
