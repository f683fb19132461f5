package main

import (
	"os"

	"honest-grader/cmd/grader/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
