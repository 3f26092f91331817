// go_ytledger builds and enriches a ledger of conference talk videos.
//
// Four batch flows run one per invocation: get_playlist_details,
// generate_summary, upload_summary and update_view_count. With no arguments
// the flow name is read from stdin. `serve` exposes the ledger read-only over
// MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
