package main

import (
	"fmt"
	"os"

	"github.com/nijenhuis/api-guard/internal/cmd"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.Version = version
	cmd.BuildTime = buildTime

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
