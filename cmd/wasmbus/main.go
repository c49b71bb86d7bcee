// Command wasmbus loads a host file and drives a component's invocation
// context from the command line: inspect links, resolve interfaces, invoke
// functions and explore them interactively.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
