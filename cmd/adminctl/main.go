package main

import (
	"os"

	"ciforge/cmd/adminctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
