// Package main provides the entry point for the kickoff CLI.
package main

import (
	"os"

	"github.com/randalmurphal/kickoff/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
