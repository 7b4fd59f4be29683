// Command s3archive packs aging bucket objects into a compressed tar
// archive in the store and deletes the originals.
package main

import (
	"fmt"
	"os"

	"github.com/eunmann/s3-archive/internal/cli"
)

func main() {
	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
