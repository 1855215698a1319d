// Command loopgraph runs the research and supervisor workflows from the
// command line.
//
//	loopgraph research "How do agent graphs use self-critique?"
//	loopgraph supervise "Compare retrieval strategies for RAG"
//	loopgraph resume research <run-id>
//	loopgraph graph supervisor
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
