package config

import (
	"fmt"
	"os"
)

// ExitUnavailable is the status for a required dependency that never became
// reachable (sysexits EX_UNAVAILABLE).
const ExitUnavailable = 69

// Exitf writes a formatted error message to stderr and exits with code 1.
func Exitf(format string, args ...any) {
	ExitCodef(1, format, args...)
}

// ExitCodef writes a formatted error message to stderr and exits with code.
func ExitCodef(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}
