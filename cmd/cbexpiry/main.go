// Command cbexpiry rewrites the expiration of every document listed by a
// map/reduce view, one bucket page at a time.
package main

import (
	"fmt"
	"os"

	"go.uber.org/automaxprocs/maxprocs"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_, _ = maxprocs.Set()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
