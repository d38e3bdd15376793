package main

import (
	"os"

	"github.com/newhook/necropolis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
