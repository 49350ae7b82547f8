package main

import (
	"os"

	"github.com/empirica/kernel/internal/cli"
)

var Version = "dev"

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
