package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

// Set with -ldflags "-X main.version=..." at release time.
var version = "dev"

func main() {
	cmd := newRootCmd()
	cmd.Version = version
	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}
