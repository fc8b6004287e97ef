// Command fio inspects, dumps and converts vector datasets.
package main

import (
	"os"

	"github.com/tingold/orb-vector/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
