// Command ragserve is the entry point for the ragserve retrieval service.
// It provides a CLI interface (via Cobra) for running the HTTP server and
// for one-shot document processing.
package main

import (
	"fmt"
	"os"

	"github.com/ragstack/ragserve/cmd/ragserve/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
