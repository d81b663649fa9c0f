// Command heapstat parses an hprof heap-dump file and prints a per-class
// aggregate report.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.Cause(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "heapstat",
		Short: "Stream and aggregate JVM hprof heap dumps",
	}
	root.AddCommand(newScanCmd())
	return root
}
