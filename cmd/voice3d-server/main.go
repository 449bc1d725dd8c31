package main

import (
	"context"
	"fmt"
	"os"

	"voice3d-server/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "voice3d-server failed: %v\n", err)
		os.Exit(1)
	}
}
