package main

import (
	"os"

	"github.com/wonny/tailgame/cmd/tailgame/commands"
)

// main is the entry point for the tailgame CLI
// ⭐ single CLI entry: go run ./cmd/tailgame [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
