package main

import (
	"os"

	"github.com/topolane/topolane/cmd/topolane/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
