package main

import (
	"os"

	"github.com/rustyeddy/tradeassist/cmd/tradeassist/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
