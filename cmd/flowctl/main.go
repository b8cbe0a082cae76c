package main

import (
	"os"
	"os/signal"
	"syscall"

	flowcmd "github.com/telekom/flowctl/pkg/flowctl/cmd"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := flowcmd.NewRootCommand(flowcmd.DefaultConfig())
	root.SetArgs(args)

	// Ctrl-C cancels the org in flight; the run report is still written.
	ctx, stop := signal.NotifyContext(root.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
