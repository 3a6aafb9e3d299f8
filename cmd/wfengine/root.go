// Package main implements the wfengine command-line interface: run a
// workflow descriptor file and stream its results, or validate one
// without executing it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "wfengine",
	Short: "wfengine runs dependency-driven task workflows",
	Long: `wfengine executes a user-supplied DAG of tasks, each producing a typed
binary buffer consumed by its dependents, across a bounded pool of
isolated workers, streaming results as they complete.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults applied if omitted)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exitWithError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
