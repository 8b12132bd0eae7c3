// Command stratbook serves and administers the strategy book.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stratbook:", err)
		os.Exit(1)
	}
}
