package main

import (
	"os"

	"github.com/lendops/tapekpi/cmd/tapekpi/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
