package main

import (
	"os"

	"dinero/internal/cli"
	"dinero/internal/commands"
)

func main() {
	cli.LoadEnvFile()
	if err := commands.NewRootCommand(nil, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
