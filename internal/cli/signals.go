package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context cancelled on the first SIGINT or
// SIGTERM. The running task is allowed to finish; a second signal exits
// immediately.
func SetupSignalHandler(w io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			fmt.Fprintf(w, "\nReceived %s, finishing the current task. Press Ctrl+C again to abort.\n", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		sig := <-sigChan
		fmt.Fprintf(w, "\nReceived %s again, aborting\n", sig)
		os.Exit(130)
	}()

	return ctx, cancel
}
