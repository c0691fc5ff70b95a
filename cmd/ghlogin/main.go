package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errLoginFailed) {
			fmt.Fprintf(os.Stderr, "ghlogin: %v\n", err)
		}
		os.Exit(1)
	}
}
