// Command mender fixes code and answers questions with a local Ollama model.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd(version).ExecuteContext(ctx)

	cancel()

	if err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		}

		os.Exit(1)
	}
}
