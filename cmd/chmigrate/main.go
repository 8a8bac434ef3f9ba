// Package main provides the entry point for the chmigrate CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sharad-Patel1/clickhome-migration/cmd/chmigrate/commands"
)

func main() {
	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
