// Package main provides the entry point for the reasoner CLI.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/reasoner/cmd/reasoner/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
