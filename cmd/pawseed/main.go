// Package main provides the pawseed command.
package main

import (
	"os"

	"github.com/leapstack-labs/pawseed/internal/cli"

	_ "github.com/leapstack-labs/pawseed/pkg/backends/reference" // registers the reference backend
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
