// Command recallr is an operator CLI for the RecallrAI API.
package main

import (
	"os"

	"github.com/recallrai/recallrai-go/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
