package config

import (
	"fmt"
	"io"
	"os"
)

// Process hooks, swapped in tests.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

// Exitf reports a startup failure on stderr and exits with status 1. Commands
// use it before logging is configured.
func Exitf(format string, args ...any) {
	fmt.Fprintf(stderr, format+"\n", args...)
	exit(1)
}
