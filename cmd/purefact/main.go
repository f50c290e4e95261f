package main

import (
	"os"

	"github.com/ppiankov/purefact/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
