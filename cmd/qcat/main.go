// Command qcat is the Q&A catalog console.
package main

import (
	"os"

	"github.com/kilupskalvis/qcat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
