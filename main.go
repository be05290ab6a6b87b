package main

import (
	"os"

	"github.com/sawt-ai/sawt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
