package main

import (
	"errors"
	"os"

	"github.com/sentinelapp/sentinel/cmd/sentinel/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if errors.Is(err, commands.ErrThreatsFound) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
