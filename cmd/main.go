package main

import (
	"os"

	"github.com/soundprediction/refiner/cmd/refiner"
)

func main() {
	if err := refiner.Execute(); err != nil {
		os.Exit(1)
	}
}
