// Package main provides the entry point for the skillmind CLI.
package main

import (
	"os"

	"github.com/skillmind/skillmind/cmd/skillmind/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
