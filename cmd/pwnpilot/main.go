package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	// An interrupt cancels the context so in-flight model calls and the
	// autonomous loop pause instead of leaving a dangling turn.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
