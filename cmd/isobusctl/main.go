package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agisostack/isobus-go/cmd/isobusctl/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
