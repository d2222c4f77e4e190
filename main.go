package main

import (
	"os"

	"github.com/matrixise/dog-tracker/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
