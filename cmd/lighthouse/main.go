// Command lighthouse is the terminal dashboard client: login, trace
// listing, live watch and execution control.
package main

import (
	"os"

	"github.com/noogler-aditya/Agent-Lighthouse/cmd/lighthouse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
