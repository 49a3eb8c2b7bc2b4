// Command epubreplace performs whole-word find-and-replace on the text of
// an ePub's content documents.
//
// Usage:
//
//	epubreplace SOURCE SEARCH REPLACE [flags]
//	epubreplace SOURCE SEARCH [flags]          # delete every SEARCH token
//	epubreplace SOURCE --plan plan.yaml [flags]
//
// SEARCH and REPLACE are comma-separated token lists. SOURCE and --out may
// be local paths or s3://bucket/key URLs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
