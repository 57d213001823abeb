// Package main is the entry point for udptool.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/udptool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
