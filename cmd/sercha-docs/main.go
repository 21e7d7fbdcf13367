// Command sercha-docs indexes documentation sources and serves them over MCP.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/sercha-docs/internal/adapters/driving/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
