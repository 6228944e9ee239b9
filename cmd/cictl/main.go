package main

import (
	"os"

	"ciforge/cmd/cictl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
