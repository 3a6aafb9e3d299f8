package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wfengine/wfengine"
	"github.com/wfengine/wfengine/config"
	"github.com/wfengine/wfengine/emit"
	"github.com/wfengine/wfengine/engine"
	"github.com/wfengine/wfengine/examplerunners"
)

var runCmd = &cobra.Command{
	Use:   "run <descriptor.json>",
	Short: "Run a workflow descriptor and stream its results",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runWorkflow(args[0])
	},
}

// builtinRegistry is the set of task types the CLI ships with. A
// deployment embedding wfengine as a library registers its own
// engine.TaskImpl implementations instead.
func builtinRegistry() map[string]engine.TaskImpl {
	return map[string]engine.TaskImpl{
		"http_fetch": examplerunners.NewHTTPFetch(),
		"concat":     examplerunners.Concat{},
	}
}

func runWorkflow(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		exitWithError(fmt.Sprintf("reading %s", path), err)
	}

	var wf wfengine.WorkflowDescriptor
	if err := json.Unmarshal(data, &wf); err != nil {
		exitWithError("parsing workflow descriptor", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("loading config", err)
	}

	eng, err := wfengine.New(cfg, builtinRegistry(), emit.NewLogEmitter(os.Stderr, false))
	if err != nil {
		exitWithError("constructing engine", err)
	}
	defer eng.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	events, err := eng.Submit(ctx, "", wf)
	if err != nil {
		exitWithError("submitting workflow", err)
	}

	for ev := range events {
		switch {
		case ev.Intermediate != nil:
			fmt.Printf("task %q complete (%d bytes)\n", ev.Intermediate.TaskID, ev.Intermediate.Output.Len())
		case ev.Final != nil:
			fmt.Printf("workflow complete: %d task result(s)\n", len(ev.Final.Results))
		}
	}
}
