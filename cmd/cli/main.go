// Package main is the entry point for forgectl, the forgeplane CLI.
package main

import (
	"os"

	"forgeplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
