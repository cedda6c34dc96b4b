// Command journalctl administers a trade journal database: users, plans,
// quota, on-demand analyses and development tokens.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	if closeErr := c.close(); closeErr != nil {
		fmt.Fprintln(os.Stderr, "close journal:", closeErr)
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}
