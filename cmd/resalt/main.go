// Package main is the entry point for the resalt control plane.
package main

import (
	"os"

	"github.com/resalt-dev/resalt/cmd/resalt/app"
	"github.com/resalt-dev/resalt/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
