// mnemosctl is the operator CLI: consolidation runs, garbage collection,
// storage compaction, and search from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
