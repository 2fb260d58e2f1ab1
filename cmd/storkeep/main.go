// Package main provides the entry point for the storkeep storage manager CLI.
package main

import (
	"errors"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		if errors.Is(err, errPartial) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
