package main

import (
	"os"

	"github.com/MJE43/lingo-ladders/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
