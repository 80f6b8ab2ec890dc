package main

import (
	"os"

	"github.com/soundprediction/uniblocker/cmd/uniblocker"
)

func main() {
	if err := uniblocker.Execute(); err != nil {
		os.Exit(1)
	}
}
