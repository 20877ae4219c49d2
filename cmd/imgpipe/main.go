// Command imgpipe fits and runs image classification chains and reproduces
// the premature image disposal defect.
//
//	imgpipe repro --scenario a        # reproduces the defect
//	imgpipe repro --scenario a --guarded
//	imgpipe run --config chains.yaml --chain classifier
//	imgpipe history                   # needs IMGPIPE_RUN_DB
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}
