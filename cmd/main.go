package main

import (
	"os"

	"github.com/MikeyZhang75/AI-Tutor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
