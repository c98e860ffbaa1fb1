// Command admin runs maintenance tasks against the enrollment database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &commandLine{out: os.Stdout}
	defer cli.close()

	if err := newRootCmd(cli).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		cli.close()
		os.Exit(1)
	}
}
