// Package main is the entry point for the inquest CLI.
//
// Usage:
//
//	inquest [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the conversation server (HTTP + SSE turn endpoint)
//	chat       - Interactive terminal client against a running server
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/inquest-app/inquest/cmd/inquest/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
