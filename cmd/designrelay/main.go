// Command designrelay runs the channel relay, an execution agent serving an
// in-memory design document, or a one-shot command issuer.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
