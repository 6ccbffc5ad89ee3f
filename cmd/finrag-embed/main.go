// Command finrag-embed backfills transaction embeddings and reports how many
// records of an entity are still missing them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openPipeline).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
