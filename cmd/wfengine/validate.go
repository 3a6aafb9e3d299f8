package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wfengine/wfengine"
)

var validateCmd = &cobra.Command{
	Use:   "validate <descriptor.json>",
	Short: "Validate a workflow descriptor without running it",
	Long: `Validate checks a workflow descriptor for duplicate task ids, missing
dependencies, and cycles, without dispatching a single task.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runValidate(args[0])
	},
}

func runValidate(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		exitWithError(fmt.Sprintf("reading %s", path), err)
	}

	var wf wfengine.WorkflowDescriptor
	if err := json.Unmarshal(data, &wf); err != nil {
		exitWithError("parsing workflow descriptor", err)
	}

	if err := wfengine.Validate(wf); err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("VALID: %d task(s)\n", len(wf.Tasks))
}
