// Package main provides the entry point for the docmind CLI.
package main

import (
	"os"

	"github.com/docmind/docmind/cmd/docmind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
