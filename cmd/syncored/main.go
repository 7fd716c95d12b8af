// Package main provides the entry point for the syncored CLI.
package main

import (
	"os"

	"github.com/amanmcp/syncore/cmd/syncored/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
