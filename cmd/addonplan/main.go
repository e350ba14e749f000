package main

import (
	"fmt"
	"os"
)

// version can be set during build with -ldflags
var version = "dev"

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "addonplan: %v\n", err)
		os.Exit(exitCode(err))
	}
}
