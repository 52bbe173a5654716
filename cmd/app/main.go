package main

import (
	"errors"
	"fmt"
	"os"

	"TradeLoop/pkg/config"
)

// Exit codes.
const (
	exitOK          = 0
	exitRuntime     = 1
	exitFatalConfig = 2
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, config.ErrFatalConfig) {
			os.Exit(exitFatalConfig)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}
