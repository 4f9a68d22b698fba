package main

import (
	"fmt"
	"os"

	"github.com/aussiebroadwan/gstirn/internal/irnctl/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "irn: %v\n", err)
		os.Exit(1)
	}
}
