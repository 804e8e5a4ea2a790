// Package main provides the entry point for the kfsearch CLI.
package main

import (
	"os"

	"github.com/kfsearch/kfsearch/cmd/kfsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
